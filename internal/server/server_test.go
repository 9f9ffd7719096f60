package server_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/app"
	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/config"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/handler"
	"github.com/josh-kwaku/grey-ledger/internal/testutil"
)

const testJWTSecret = "server-test-secret"

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *handler.APIError `json:"error"`
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	db  *sql.DB
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.SetupTestDB(t)

	cfg := &config.Config{
		JWTSecret:                    testJWTSecret,
		FieldEncryptionKeys:          map[int]string{1: "field-secret"},
		FieldEncryptionActiveVersion: 1,
		SearchHashSecret:             "hash-secret",
		KeyRotationBatch:             10,
		ApprovalThreshold:            "5000.00",
		OpsManagerApprovalCeiling:    "1000.00",
		FraudBlockSeverity:           "critical",
		FraudSweepInterval:           time.Minute,
		FraudSweepLookback:           time.Hour,
		FraudTimezone:                "UTC",
		IdempotencyTTL:               time.Hour,
		IdempotencyLease:             30 * time.Second,
		IdempotencyPurgeInterval:     time.Hour,
		NotifyPollInterval:           time.Second,
		NotifyMaxAttempts:            3,
	}
	a, err := app.New(db, cfg, slog.Default())
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, db: db}
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	tok, err := auth.GenerateToken(actor.ID, actor.Role, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path string, actor *domain.Actor, key string, body any) (*http.Response, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+token(s.t, *actor))
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func seedAccount(t *testing.T, s *testServer, balance int64) uuid.UUID {
	t.Helper()
	return testutil.SeedAccount(t, s.db, testutil.SeedCustomer(t, s.db), balance).ID
}

func (s *testServer) countTransactions() int {
	return testutil.CountTransactions(s.t, s.db)
}

func (s *testServer) balance(id uuid.UUID) int64 {
	return testutil.GetAccountBalance(s.t, s.db, id)
}

func withdrawalBody(from uuid.UUID, amount string) map[string]any {
	return map[string]any{"type": "withdrawal", "from_account_id": from, "amount": amount}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	s := setupServer(t)

	resp, err := http.Get(s.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCreateTransaction_ReplayedRetryPostsOnce(t *testing.T) {
	s := setupServer(t)
	teller := testutil.TellerActor

	acct := seedAccount(t, s, 100000)
	key := uuid.NewString()

	first, firstEnv := s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "250.00"))
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Empty(t, first.Header.Get("X-Idempotent-Replayed"))

	second, secondEnv := s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "250.00"))
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("X-Idempotent-Replayed"))
	assert.JSONEq(t, string(firstEnv.Data), string(secondEnv.Data))

	var got struct {
		Status string `json:"status"`
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(firstEnv.Data, &got))
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "250.00", got.Amount)

	assert.Equal(t, 1, s.countTransactions())
	assert.Equal(t, int64(75000), s.balance(acct))
}

func TestCreateTransaction_KeyReusedWithDifferentBody(t *testing.T) {
	s := setupServer(t)
	teller := testutil.TellerActor
	acct := seedAccount(t, s, 100000)
	key := uuid.NewString()

	resp, _ := s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "10.00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env := s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "20.00"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REQUEST", env.Error.Code)
	assert.Equal(t, 1, s.countTransactions())
}

func TestCreateTransaction_ClientErrorsAreCached(t *testing.T) {
	s := setupServer(t)
	teller := testutil.TellerActor
	acct := seedAccount(t, s, 1000)
	key := uuid.NewString()

	resp, env := s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "50.00"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)

	resp, env = s.do(http.MethodPost, "/api/v1/transactions", &teller, key, withdrawalBody(acct, "50.00"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Idempotent-Replayed"))
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)
}

func TestCreateTransaction_RequestErrors(t *testing.T) {
	s := setupServer(t)
	teller := testutil.TellerActor
	acct := seedAccount(t, s, 1000)

	tests := []struct {
		name       string
		actor      *domain.Actor
		key        string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "no token", key: "k1", body: withdrawalBody(acct, "1.00"), wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "no idempotency key", actor: &teller, body: withdrawalBody(acct, "1.00"), wantStatus: http.StatusBadRequest, wantCode: "MISSING_IDEMPOTENCY_KEY"},
		{name: "too many decimals", actor: &teller, key: "k2", body: withdrawalBody(acct, "1.001"), wantStatus: http.StatusBadRequest, wantCode: "INVALID_AMOUNT"},
		{name: "zero amount", actor: &teller, key: "k3", body: withdrawalBody(acct, "0"), wantStatus: http.StatusBadRequest, wantCode: "INVALID_AMOUNT"},
		{name: "unknown type", actor: &teller, key: "k4", body: map[string]any{"type": "loan", "amount": "1.00"}, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "missing account", actor: &teller, key: "k5", body: map[string]any{"type": "withdrawal", "amount": "1.00"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_ACCOUNT_STATE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := s.do(http.MethodPost, "/api/v1/transactions", tc.actor, tc.key, tc.body)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)
		})
	}
	assert.Equal(t, 0, s.countTransactions())
}

func TestApproval_OverHTTP(t *testing.T) {
	s := setupServer(t)
	maker := testutil.ManagerActor
	checker := testutil.ManagerActor2
	acct := seedAccount(t, s, 1000000)

	resp, env := s.do(http.MethodPost, "/api/v1/transactions", &maker, uuid.NewString(), withdrawalBody(acct, "7500.00"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created struct {
		TransactionID uuid.UUID `json:"transaction_id"`
		Status        string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "pending_approval", created.Status)

	path := fmt.Sprintf("/api/v1/transactions/%s/approve", created.TransactionID)

	resp, env = s.do(http.MethodPost, path, &maker, uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PERMISSION_DENIED", env.Error.Code)
	assert.JSONEq(t, `{"reason":"cannot approve their own transaction"}`, mustJSON(t, env.Error.Details))

	resp, env = s.do(http.MethodPost, path, &checker, uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved struct {
		Status     string     `json:"status"`
		ApprovedBy *uuid.UUID `json:"approved_by"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, "completed", approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, checker.ID, *approved.ApprovedBy)
	assert.Equal(t, int64(250000), s.balance(acct))

	resp, env = s.do(http.MethodPost, path, &checker, uuid.NewString(), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
}

func TestAudit_RequiresReviewerRole(t *testing.T) {
	s := setupServer(t)
	teller := testutil.TellerActor
	compliance := testutil.ComplianceActor
	acct := seedAccount(t, s, 100000)

	resp, env := s.do(http.MethodPost, "/api/v1/transactions", &teller, uuid.NewString(), withdrawalBody(acct, "5.00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		TransactionID uuid.UUID `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	path := "/api/v1/audit?entity_type=transaction&entity_id=" + created.TransactionID.String()

	resp, _ = s.do(http.MethodGet, path, &teller, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, env := s.do(http.MethodGet, path, &compliance, "", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var entries []map[string]any
		return json.Unmarshal(env.Data, &entries) == nil && len(entries) == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
