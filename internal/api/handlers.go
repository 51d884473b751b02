/**
 * @description
 * This file contains the HTTP handlers for the credits-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application services, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * User-facing read endpoints authenticate via JWT; mutation endpoints are
 * server-to-server only and sit behind the internal API key middleware.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/app"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
	"github.com/shopspring/decimal"
)

// CreditHandlers holds the application services that handlers will use.
type CreditHandlers struct {
	ledger  *app.LedgerService
	loyalty *app.LoyaltyService
	payouts *app.PayoutBatcher
}

// NewCreditHandlers creates a new instance of CreditHandlers.
func NewCreditHandlers(ledger *app.LedgerService, loyalty *app.LoyaltyService, payouts *app.PayoutBatcher) *CreditHandlers {
	return &CreditHandlers{
		ledger:  ledger,
		loyalty: loyalty,
		payouts: payouts,
	}
}

// ledgerMutationRequest is the body for internal grant and charge calls.
type ledgerMutationRequest struct {
	UserID      uuid.UUID              `json:"user_id"`
	Amount      int64                  `json:"amount"`
	Type        domain.TransactionType `json:"type"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// checkoutRequest identifies the user for checkout-driven endpoints.
type checkoutRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// recordUsageRequest is the body for recording a recipe usage.
type recordUsageRequest struct {
	UserID               uuid.UUID  `json:"user_id"`
	RecipeID             uuid.UUID  `json:"recipe_id"`
	CreatorID            *uuid.UUID `json:"creator_id,omitempty"`
	CreatorEarningAmount string     `json:"creator_earning_amount,omitempty"`
	RequiresWalmart      bool       `json:"requires_walmart"`
}

// authenticatedUserID resolves the JWT subject to the internal user UUID,
// writing the error response itself when resolution fails.
func (h *CreditHandlers) authenticatedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	externalID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}

	userID, err := h.ledger.ResolveUserID(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return uuid.Nil, false
		}
		log.Printf("level=error component=api msg=\"user resolution failed\" external_id=%s err=%v", externalID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to resolve user")
		return uuid.Nil, false
	}
	return userID, true
}

// GetBalanceHandler returns the authenticated user's current credit balance.
func (h *CreditHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_balance msg=\"balance lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch balance")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// ListTransactionsHandler returns one page of the authenticated user's
// transaction history, newest first. Supports limit, offset and type query
// parameters.
func (h *CreditHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	opts := domain.TransactionHistoryOptions{
		Limit:      parseIntParam(r, "limit", 50),
		Offset:     parseIntParam(r, "offset", 0),
		TypeFilter: domain.TransactionType(r.URL.Query().Get("type")),
	}

	transactions, total, err := h.ledger.GetTransactionHistory(r.Context(), userID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions msg=\"history lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"total":        total,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

// GetTierHandler returns the authenticated user's subscription tier and
// feature gating flags.
func (h *CreditHandlers) GetTierHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	account, err := h.ledger.GetUserAccount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_tier msg=\"account lookup failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch subscription tier")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":       account.ID,
		"tier":          account.SubscriptionTier,
		"is_pro_user":   account.IsProUser,
		"is_power_user": account.IsPowerUser,
	})
}

// GrantCreditsHandler grants credits to a user. Internal, server-to-server only.
func (h *CreditHandlers) GrantCreditsHandler(w http.ResponseWriter, r *http.Request) {
	var req ledgerMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.ledger.Grant(r.Context(), req.UserID, req.Amount, req.Type, req.Description, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("level=error component=api endpoint=grant_credits msg=\"grant failed\" user_id=%s amount=%d err=%v", req.UserID, req.Amount, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to grant credits")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, record)
}

// ChargeCreditsHandler charges credits from a user. An insufficient balance
// maps to 402 with a machine-readable code so clients can present the paywall
// rather than a generic failure.
func (h *CreditHandlers) ChargeCreditsHandler(w http.ResponseWriter, r *http.Request) {
	var req ledgerMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.ledger.Charge(r.Context(), req.UserID, req.Amount, req.Type, req.Description, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, store.ErrInsufficientCredits):
			h.writeJSON(w, http.StatusPaymentRequired, map[string]string{
				"error": "Insufficient credits",
				"code":  "insufficient_credits",
			})
		default:
			log.Printf("level=error component=api endpoint=charge_credits msg=\"charge failed\" user_id=%s amount=%d err=%v", req.UserID, req.Amount, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to charge credits")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, record)
}

// CheckoutCompletedHandler rewards one completed Walmart checkout with the
// scheduled loyalty credits.
func (h *CreditHandlers) CheckoutCompletedHandler(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reward, err := h.loyalty.RewardCheckout(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=checkout_completed msg=\"reward failed\" user_id=%s err=%v", req.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to reward checkout")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"checkout_number": reward.Ordinal,
		"amount":          reward.Amount,
	})
}

// CheckoutEligibleHandler stamps the user's pending recipe usages as
// checkout-eligible, unlocking their creator earnings for payout.
func (h *CreditHandlers) CheckoutEligibleHandler(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stamped, err := h.loyalty.MarkUsagesCheckoutEligible(r.Context(), req.UserID)
	if err != nil {
		log.Printf("level=error component=api endpoint=checkout_eligible msg=\"eligibility stamp failed\" user_id=%s err=%v", req.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to update usage eligibility")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"usages_stamped": stamped})
}

// RecordUsageHandler records one recipe usage and its derived creator earning.
func (h *CreditHandlers) RecordUsageHandler(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil || req.RecipeID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	earning := decimal.Zero
	if req.CreatorEarningAmount != "" {
		parsed, err := decimal.NewFromString(req.CreatorEarningAmount)
		if err != nil || parsed.IsNegative() {
			h.writeError(w, http.StatusBadRequest, "Invalid creator earning amount")
			return
		}
		earning = parsed
	}

	usage := &domain.RecipeUsage{
		UserID:               req.UserID,
		RecipeID:             req.RecipeID,
		CreatorID:            req.CreatorID,
		CreatorEarningAmount: earning,
		RequiresWalmart:      req.RequiresWalmart,
	}
	if err := h.loyalty.RecordRecipeUsage(r.Context(), usage); err != nil {
		log.Printf("level=error component=api endpoint=record_usage msg=\"usage record failed\" user_id=%s recipe_id=%s err=%v", req.UserID, req.RecipeID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to record recipe usage")
		return
	}

	h.writeJSON(w, http.StatusCreated, usage)
}

// RunPayoutsHandler triggers one payout batch run outside the cron schedule.
func (h *CreditHandlers) RunPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.payouts.Run(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=run_payouts msg=\"payout run failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Payout run failed")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// parseIntParam reads a non-negative integer query parameter with a default.
func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *CreditHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *CreditHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
