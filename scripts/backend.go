// Backend is a small API server for trying the interceptor locally.
// Run several copies on different ports and point the candidate list at
// them to watch failover happen.
//
// Usage:
//
//	go run scripts/backend.go -port 8000
//	go run scripts/backend.go -port 8001 -status 500
//	go run scripts/backend.go -port 8002 -delay 15s
//
// Every request is answered with a JSON echo of what the backend received,
// so the adapted Origin header and the forwarded body are visible.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

type echo struct {
	ID       string `json:"id"`
	Backend  string `json:"backend"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Body     string `json:"body,omitempty"`
	Received string `json:"received"`
}

func main() {
	port := flag.Int("port", 8000, "port to listen on")
	status := flag.Int("status", http.StatusOK, "status code to answer with")
	delay := flag.Duration("delay", 0, "wait before answering")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.Int("port", *port))
	name := fmt.Sprintf("localhost:%d", *port)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("origin", r.Header.Get("Origin")),
			slog.Int("body_bytes", len(body)))

		if *delay > 0 {
			select {
			case <-time.After(*delay):
			case <-r.Context().Done():
				log.Warn("client gave up", slog.String("path", r.URL.Path))
				return
			}
		}

		b, _ := json.Marshal(echo{
			ID:       uuid.NewString(),
			Backend:  name,
			Method:   r.Method,
			Path:     r.URL.Path,
			Query:    r.URL.RawQuery,
			Origin:   r.Header.Get("Origin"),
			Body:     string(body),
			Received: time.Now().UTC().Format(time.RFC3339),
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(*status)
		w.Write(b)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting backend", slog.String("addr", addr), slog.Int("status", *status), slog.Duration("delay", *delay))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
