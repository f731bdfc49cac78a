// Package main implements a one-shot CLI for asking questions against a
// running API server.
//
//	ask -q "What were Apple's risk factors?" -ticker AAPL -type 10-K
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type askRequest struct {
	Question   string `json:"question"`
	Ticker     string `json:"ticker,omitempty"`
	FilingType string `json:"filing_type,omitempty"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
	K          int    `json:"k,omitempty"`
}

type askResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		Reference  string  `json:"reference"`
		Confidence float32 `json:"confidence"`
	} `json:"sources"`
	Model     string `json:"model"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error"`
}

func main() {
	var (
		server     = flag.String("server", envOr("QA_SERVER", "http://localhost:8080"), "API server base URL")
		question   = flag.String("q", "", "question to ask (required)")
		ticker     = flag.String("ticker", "", "restrict to a ticker symbol")
		filingType = flag.String("type", "", "restrict to a filing type, e.g. 10-K")
		from       = flag.String("from", "", "earliest filing date (YYYY-MM-DD)")
		to         = flag.String("to", "", "latest filing date (YYYY-MM-DD)")
		k          = flag.Int("k", 0, "number of source chunks (server default when 0)")
		timeout    = flag.Duration("timeout", 2*time.Minute, "request timeout")
		asJSON     = flag.Bool("json", false, "print the raw JSON response")
	)
	flag.Parse()

	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: ask -q \"your question\" [-ticker SYM] [-type 10-K] [-from DATE] [-to DATE]")
		os.Exit(2)
	}

	body, _ := json.Marshal(askRequest{
		Question:   *question,
		Ticker:     *ticker,
		FilingType: *filingType,
		DateFrom:   *from,
		DateTo:     *to,
		K:          *k,
	})

	client := &http.Client{Timeout: *timeout}
	req, err := http.NewRequest(http.MethodPost, *server+"/api/ask", bytes.NewReader(body))
	if err != nil {
		fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", "ask-cli-"+hostname())

	resp, err := client.Do(req)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	if *asJSON {
		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			fatal(err)
		}
		var pretty bytes.Buffer
		json.Indent(&pretty, raw, "", "  ")
		fmt.Println(pretty.String())
		if resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		return
	}

	var ans askResponse
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		fatal(fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK {
		fatal(fmt.Errorf("server returned %d: %s", resp.StatusCode, ans.Error))
	}

	fmt.Println(ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, s := range ans.Sources {
			fmt.Printf("  [%d] %s (confidence %.2f)\n", i+1, s.Reference, s.Confidence)
		}
	}
	fmt.Printf("\n%s, %dms\n", ans.Model, ans.ElapsedMS)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "ask:", err)
	os.Exit(1)
}
