package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("questions_total", "Total questions answered.")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter = %d", c.Value())
	}

	g := r.Gauge("index_vectors", "Vectors in the active index.")
	g.Set(10)
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("gauge = %d", g.Value())
	}

	// Same name returns the same instance.
	if r.Counter("questions_total", "") != c {
		t.Error("counter must be shared by name")
	}
}

func TestHistogramRender(t *testing.T) {
	r := New()
	h := r.Histogram("answer_seconds", "Answer latency.", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	out := r.Render()
	for _, want := range []string{
		"# TYPE answer_seconds histogram",
		`answer_seconds_bucket{le="0.1"} 1`,
		`answer_seconds_bucket{le="1"} 2`,
		`answer_seconds_bucket{le="10"} 3`,
		`answer_seconds_bucket{le="+Inf"} 4`,
		"answer_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestWithLabels(t *testing.T) {
	name := WithLabels("requests_total", "path", "/api/ask", "status", "200")
	if name != `requests_total{path="/api/ask",status="200"}` {
		t.Errorf("got %q", name)
	}
	if WithLabels("x", "odd") != "x" {
		t.Error("odd label pairs must be ignored")
	}
}

func TestLabeledCountersShareTypeLine(t *testing.T) {
	r := New()
	r.Counter(WithLabels("requests_total", "status", "200"), "Requests.").Inc()
	r.Counter(WithLabels("requests_total", "status", "500"), "").Inc()

	out := r.Render()
	if strings.Count(out, "# TYPE requests_total counter") != 1 {
		t.Errorf("labeled series must share one TYPE line:\n%s", out)
	}
	if !strings.Contains(out, `requests_total{status="200"} 1`) ||
		!strings.Contains(out, `requests_total{status="500"} 1`) {
		t.Errorf("missing labeled series:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "up 1") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
