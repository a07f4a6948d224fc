// mock-cmp is a stub Consent Management Platform peer used to exercise
// the ACK contract end to end. It verifies X-DF-Signature over the raw
// body, accepts the three ACK kinds, and can simulate intermittent
// failures and slow responses.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/concurhq/consent-exchange/internal/signature"
)

var requestCount atomic.Int64

func main() {
	port := "8001"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	secret := os.Getenv("CMP_WEBHOOK_SECRET")
	if secret == "" {
		secret = "cmp_webhook_secret"
	}

	// Every Nth request fails with 503 to exercise retries; 0 disables.
	failEvery := 0
	if v := os.Getenv("MOCK_FAIL_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failEvery = n
		}
	}

	verifier := signature.New(map[string]string{"CMP_WEBHOOK_SECRET": secret})

	ack := func(kind string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			count := requestCount.Add(1)

			if failEvery > 0 && count%int64(failEvery) == 0 {
				logRequest(r, count, http.StatusServiceUnavailable, kind)
				respond(w, http.StatusServiceUnavailable, map[string]any{
					"error": fmt.Sprintf("simulated failure on request #%d", count),
				})
				return
			}

			body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			tag := r.Header.Get(signature.EgressHeader)
			if !verifier.Verify("CMP_WEBHOOK_SECRET", body, tag) {
				logRequest(r, count, http.StatusUnauthorized, kind)
				respond(w, http.StatusUnauthorized, map[string]any{"error": "invalid signature"})
				return
			}

			logRequest(r, count, http.StatusOK, kind)
			respond(w, http.StatusOK, map[string]any{"status": "ok", "kind": kind})
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/consent-artifact/consent-ack", ack("consent-ack"))
	mux.HandleFunc("/api/v1/consent-artifact/erasure-ack", ack("data-erasure-ack"))
	mux.HandleFunc("/api/v1/n/dp-verification-ack", ack("verification-ack"))

	// Slow variant — answers 200 after a delay longer than the sender's
	// 10 s budget, for timeout testing.
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(15 * time.Second)
		logRequest(r, count, http.StatusOK, "slow")
		respond(w, http.StatusOK, map[string]any{"status": "ok (slow)"})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("mock CMP starting on :%s (fail_every=%d)", port, failEvery)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func logRequest(r *http.Request, count int64, status int, kind string) {
	fmt.Printf("[#%d] %s %s -> %d | kind=%s sig=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		kind,
		truncate(r.Header.Get(signature.EgressHeader), 16),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
