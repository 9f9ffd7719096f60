package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

// HTTPSender posts notifications to the messaging gateway.
type HTTPSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type gatewayPayload struct {
	NotificationID string          `json:"notification_id"`
	Kind           string          `json:"kind"`
	TransactionID  string          `json:"transaction_id"`
	Data           json.RawMessage `json:"data"`
}

func (s *HTTPSender) Send(ctx context.Context, n domain.Notification) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(gatewayPayload{
		NotificationID: n.ID.String(),
		Kind:           string(n.Kind),
		TransactionID:  n.TransactionID.String(),
		Data:           n.Payload,
	})
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID.String())

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("gateway response received",
		"notification_id", n.ID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Send: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogSender writes notifications to the log. Used when no gateway is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n domain.Notification) error {
	s.logger.Info("notification",
		"notification_id", n.ID,
		"kind", n.Kind,
		"transaction_id", n.TransactionID,
		"data", string(n.Payload),
	)
	return nil
}
