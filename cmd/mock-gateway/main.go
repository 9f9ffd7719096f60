// Command mock-gateway stands in for the messaging gateway in local
// development. It accepts notifications, logs them and deduplicates by
// Idempotency-Key so dispatcher retries are visible.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

type notification struct {
	NotificationID string          `json:"notification_id"`
	Kind           string          `json:"kind"`
	TransactionID  string          `json:"transaction_id"`
	Data           json.RawMessage `json:"data"`
}

type gateway struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (g *gateway) receive(w http.ResponseWriter, r *http.Request) {
	var n notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	g.mu.Lock()
	_, dup := g.seen[key]
	g.seen[key] = struct{}{}
	g.mu.Unlock()

	slog.Info("notification received",
		"notification_id", n.NotificationID,
		"kind", n.Kind,
		"transaction_id", n.TransactionID,
		"duplicate", dup,
	)
	w.WriteHeader(http.StatusAccepted)
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	addr := ":8081"
	if v := os.Getenv("MOCK_GATEWAY_ADDR"); v != "" {
		addr = v
	}

	g := &gateway{seen: make(map[string]struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /notifications", g.receive)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
