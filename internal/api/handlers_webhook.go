/**
 * @description
 * This file contains the HTTP handler for processing incoming entitlement
 * webhooks from the subscription platform. It acts as the entry point for all
 * subscription lifecycle notifications (purchases, renewals, expirations and
 * one-time credit pack purchases).
 *
 * Key features:
 * - Security: Validates the shared bearer token the platform is configured to
 *   send in the Authorization header.
 * - Acknowledgment: A syntactically valid delivery is always acknowledged with
 *   200 so the platform does not retry-storm; unresolved tiers or products are
 *   reported in the ack body, and internal failures are reported there too and
 *   retried safely thanks to event-level idempotency.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For event processing and models.
 */
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/pantrychef/credits-service/internal/app"
	"github.com/pantrychef/credits-service/internal/domain"
)

// EntitlementWebhookHandler processes entitlement events delivered over HTTP.
type EntitlementWebhookHandler struct {
	processor *app.EntitlementEventProcessor
	authToken string
}

// NewEntitlementWebhookHandler creates a new handler for the webhook endpoint.
// An empty authToken disables the Authorization check (local development).
func NewEntitlementWebhookHandler(processor *app.EntitlementEventProcessor, authToken string) *EntitlementWebhookHandler {
	return &EntitlementWebhookHandler{
		processor: processor,
		authToken: authToken,
	}
}

// entitlementWebhookPayload mirrors the platform's event envelope.
type entitlementWebhookPayload struct {
	Event struct {
		ID             string   `json:"id"`
		Type           string   `json:"type"`
		AppUserID      string   `json:"app_user_id"`
		ProductID      string   `json:"product_id"`
		EntitlementIDs []string `json:"entitlement_ids"`
	} `json:"event"`
}

// webhookAck is the acknowledgment body returned for every accepted delivery.
type webhookAck struct {
	Processed  bool   `json:"processed"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Unresolved string `json:"unresolved,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ServeHTTP implements the http.Handler interface.
func (h *EntitlementWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.isAuthorized(r) {
		log.Printf("level=warn component=webhook msg=\"rejected delivery with bad authorization\" remote=%s", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload entitlementWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("level=warn component=webhook msg=\"invalid webhook JSON\" err=%v", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Event.ID == "" {
		http.Error(w, "Missing event id", http.StatusBadRequest)
		return
	}

	event := domain.EntitlementEvent{
		EventID:        payload.Event.ID,
		EventType:      domain.EntitlementEventType(payload.Event.Type),
		AppUserID:      payload.Event.AppUserID,
		ProductID:      payload.Event.ProductID,
		EntitlementIDs: payload.Event.EntitlementIDs,
	}

	result, err := h.processor.Process(r.Context(), event)

	// The delivery is acknowledged even on internal failure; events apply at
	// most once, so the platform re-sending this event later is harmless.
	ack := webhookAck{
		Processed:  result.Applied,
		Duplicate:  result.Duplicate,
		Unresolved: result.Unresolved,
	}
	if err != nil {
		log.Printf("level=error component=webhook msg=\"event processing failed\" event_id=%s event_type=%s err=%v", event.EventID, event.EventType, err)
		ack.Error = "event processing failed"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ack)
}

// isAuthorized checks the shared bearer token, when one is configured.
func (h *EntitlementWebhookHandler) isAuthorized(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	return token != header && token == h.authToken
}
