package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/app"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
)

// stubWebhookRepo implements the slice of store.Repository the entitlement
// processor touches; everything else panics via the embedded interface.
type stubWebhookRepo struct {
	store.Repository
	userID   uuid.UUID
	applied  map[string]bool
	applyErr error
}

func (s *stubWebhookRepo) FindUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	return s.userID, nil
}

func (s *stubWebhookRepo) FindUserAccount(ctx context.Context, userID uuid.UUID) (*domain.UserAccount, error) {
	return &domain.UserAccount{ID: userID, SubscriptionTier: domain.TierNone}, nil
}

func (s *stubWebhookRepo) ApplyEntitlementEvent(ctx context.Context, eventID string, eventType domain.EntitlementEventType, grant *store.GrantParams, tier *domain.TierUpdate) (bool, error) {
	if s.applyErr != nil {
		return false, s.applyErr
	}
	if s.applied[eventID] {
		return false, nil
	}
	s.applied[eventID] = true
	return true, nil
}

func newWebhookHandler(repo *stubWebhookRepo, token string) *EntitlementWebhookHandler {
	processor := app.NewEntitlementEventProcessor(repo, nil)
	return NewEntitlementWebhookHandler(processor, token)
}

func postWebhook(t *testing.T, handler http.Handler, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/entitlements", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

const proPurchaseBody = `{"event":{"id":"evt_1","type":"INITIAL_PURCHASE","app_user_id":"user_abc","product_id":"pantrychef_pro_monthly","entitlement_ids":["pro"]}}`

func TestWebhookAppliesEvent(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool)}
	handler := newWebhookHandler(repo, "")

	resp := postWebhook(t, handler, proPurchaseBody, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var ack struct {
		Processed bool   `json:"processed"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if !ack.Processed || ack.Error != "" {
		t.Fatalf("expected processed ack, got %+v", ack)
	}
}

func TestWebhookReplayAcknowledgedAsDuplicate(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool)}
	handler := newWebhookHandler(repo, "")

	if resp := postWebhook(t, handler, proPurchaseBody, ""); resp.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", resp.Code)
	}
	resp := postWebhook(t, handler, proPurchaseBody, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", resp.Code)
	}

	var ack struct {
		Processed bool `json:"processed"`
		Duplicate bool `json:"duplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.Processed || !ack.Duplicate {
		t.Fatalf("expected duplicate ack, got %+v", ack)
	}
}

func TestWebhookUnresolvedProductStillReturns200(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool)}
	handler := newWebhookHandler(repo, "")

	body := `{"event":{"id":"evt_2","type":"NON_RENEWING_PURCHASE","app_user_id":"user_abc","product_id":"credits_999"}}`
	resp := postWebhook(t, handler, body, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for unresolved product, got %d", resp.Code)
	}

	var ack struct {
		Processed  bool   `json:"processed"`
		Unresolved string `json:"unresolved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.Processed || ack.Unresolved == "" {
		t.Fatalf("expected unresolved ack, got %+v", ack)
	}
}

func TestWebhookInternalFailureStillReturns200(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool), applyErr: errors.New("database unavailable")}
	handler := newWebhookHandler(repo, "")

	resp := postWebhook(t, handler, proPurchaseBody, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 even on internal failure, got %d", resp.Code)
	}

	var ack struct {
		Processed bool   `json:"processed"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.Processed || ack.Error == "" {
		t.Fatalf("expected error ack, got %+v", ack)
	}
}

func TestWebhookRejectsBadToken(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool)}
	handler := newWebhookHandler(repo, "expected-token")

	if resp := postWebhook(t, handler, proPurchaseBody, "wrong-token"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp.Code)
	}
	if resp := postWebhook(t, handler, proPurchaseBody, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", resp.Code)
	}
	if resp := postWebhook(t, handler, proPurchaseBody, "expected-token"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for correct token, got %d", resp.Code)
	}
}

func TestWebhookRejectsMalformedPayloads(t *testing.T) {
	repo := &stubWebhookRepo{userID: uuid.New(), applied: make(map[string]bool)}
	handler := newWebhookHandler(repo, "")

	if resp := postWebhook(t, handler, "{not json", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", resp.Code)
	}
	if resp := postWebhook(t, handler, `{"event":{"type":"RENEWAL"}}`, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing event id, got %d", resp.Code)
	}
}
