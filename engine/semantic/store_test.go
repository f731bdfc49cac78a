package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/index"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteReq  *pb.DeletePoints
	deleteErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	createReq *pb.CreateCollection
	createErr error
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}
func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: true}, m.deleteErr
}

func sampleChunk() domain.Chunk {
	return domain.Chunk{
		ID:    3,
		DocID: "AAPL:0000320193-24-000123",
		Start: 600,
		Text:  "Revenue increased 8% year over year.",
		Meta: domain.ChunkMeta{
			Ticker:      "AAPL",
			CompanyName: "Apple Inc.",
			FilingType:  "10-K",
			FilingDate:  time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC),
			Accession:   "0000320193-24-000123",
			Section:     "Item 7",
		},
	}
}

// --- Tests ---

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("AAPL:acc", 3)
	b := PointID("AAPL:acc", 3)
	if a != b {
		t.Fatal("same chunk must map to the same point ID")
	}
	if a == PointID("AAPL:acc", 4) {
		t.Fatal("different chunks must map to different point IDs")
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "filings"}},
		},
	}
	vs := NewWithClients(&mockPoints{}, cols, "filings")
	if err := vs.EnsureCollection(context.Background(), 768, index.MetricSquaredL2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq != nil {
		t.Fatal("existing collection must not be recreated")
	}
}

func TestEnsureCollection_CreatesWithMetric(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{},
	}
	vs := NewWithClients(&mockPoints{}, cols, "filings")
	if err := vs.EnsureCollection(context.Background(), 768, index.MetricCosine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := cols.createReq.GetVectorsConfig().GetParams()
	if params.GetSize() != 768 {
		t.Errorf("size = %d, want 768", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("distance = %v, want Cosine", params.GetDistance())
	}
}

func TestEnsureCollection_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("unavailable")}
	vs := NewWithClients(&mockPoints{}, cols, "filings")
	if err := vs.EnsureCollection(context.Background(), 768, index.MetricSquaredL2); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsert_BuildsPayload(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "filings")

	chunk := sampleChunk()
	rec := RecordFromChunk(chunk, []float32{0.1, 0.2})
	if err := vs.Upsert(context.Background(), []VectorRecord{rec}); err != nil {
		t.Fatal(err)
	}

	got := pts.upsertReq.GetPoints()
	if len(got) != 1 {
		t.Fatalf("got %d points", len(got))
	}
	payload := got[0].GetPayload()
	if payload["ticker"].GetStringValue() != "AAPL" {
		t.Errorf("ticker payload = %v", payload["ticker"])
	}
	if payload["filing_date"].GetStringValue() != "2024-10-30" {
		t.Errorf("filing_date payload = %v", payload["filing_date"])
	}
	if payload["chunk_id"].GetIntegerValue() != 3 {
		t.Errorf("chunk_id payload = %v", payload["chunk_id"])
	}
	if got[0].GetId().GetUuid() != PointID(chunk.DocID, chunk.ID) {
		t.Error("point ID must be derived from the chunk")
	}
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "filings")
	if err := vs.Upsert(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if pts.upsertReq != nil {
		t.Fatal("empty upsert must not hit the server")
	}
}

func TestDeleteByDocument_FiltersOnDocID(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "filings")
	if err := vs.DeleteByDocument(context.Background(), "AAPL:acc"); err != nil {
		t.Fatal(err)
	}
	filter := pts.deleteReq.GetPoints().GetFilter()
	if len(filter.GetMust()) != 1 {
		t.Fatalf("filter conditions = %d", len(filter.GetMust()))
	}
	cond := filter.GetMust()[0].GetField()
	if cond.GetKey() != "doc_id" || cond.GetMatch().GetKeyword() != "AAPL:acc" {
		t.Errorf("filter = %v", cond)
	}
}

func TestSearchFiltered_RoundTrip(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "abc"}},
					Score: 0.91,
					Payload: map[string]*pb.Value{
						"content":     {Kind: &pb.Value_StringValue{StringValue: "Revenue increased."}},
						"doc_id":      {Kind: &pb.Value_StringValue{StringValue: "AAPL:acc"}},
						"ticker":      {Kind: &pb.Value_StringValue{StringValue: "AAPL"}},
						"filing_type": {Kind: &pb.Value_StringValue{StringValue: "10-K"}},
						"filing_date": {Kind: &pb.Value_StringValue{StringValue: "2024-10-30"}},
						"chunk_id":    {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
					},
				},
			},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "filings")

	results, err := vs.SearchFiltered(context.Background(), []float32{0.1}, 5, map[string]string{
		"ticker": "AAPL",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if pts.searchReq.GetFilter() == nil {
		t.Fatal("filters must be forwarded to the server")
	}

	chunk := results[0].Chunk()
	if chunk.ID != 3 || chunk.Meta.Ticker != "AAPL" {
		t.Errorf("reconstructed chunk = %+v", chunk)
	}
	if !chunk.Meta.FilingDate.Equal(time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("filing date = %v", chunk.Meta.FilingDate)
	}
	if chunk.Text != "Revenue increased." {
		t.Errorf("content = %q", chunk.Text)
	}
}

func TestSearch_Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("unavailable")}
	vs := NewWithClients(pts, &mockCollections{}, "filings")
	if _, err := vs.Search(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatal("expected error")
	}
}
