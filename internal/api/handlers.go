/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/app"
	"github.com/payvault/transfer-service/internal/domain"
	"github.com/payvault/transfer-service/internal/store"
)

// ProfileSource fetches the caller's own account identity. The snapshot always
// comes from the account service, never from the request body.
type ProfileSource interface {
	GetTransferProfile(ctx context.Context, ownerID uuid.UUID) (*domain.SenderSnapshot, error)
}

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service  *app.Service
	resolver *app.Resolver
	profiles ProfileSource
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service, resolver *app.Resolver, profiles ProfileSource) *TransferHandlers {
	return &TransferHandlers{service: service, resolver: resolver, profiles: profiles}
}

// submitTransferRequest is the wire shape of a confirmed transfer submission.
// The fee and total_debit are the values the user saw and confirmed; the
// service validates them against each other and never recomputes them.
type submitTransferRequest struct {
	RequestID      string                  `json:"request_id"`
	Category       domain.TransferCategory `json:"category"`
	Amount         int64                   `json:"amount"`
	Narration      string                  `json:"narration"`
	Bank           *domain.BankRecipient   `json:"bank,omitempty"`
	Peer           *domain.PeerRecipient   `json:"peer,omitempty"`
	Fee            int64                   `json:"fee"`
	TotalDebit     int64                   `json:"total_debit"`
	SaveRecipient  bool                    `json:"save_recipient"`
	TransactionPIN string                  `json:"transaction_pin"`
}

// validationFailureResponse reports why a submission was rejected before any
// funds moved.
type validationFailureResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// authedSender resolves the JWT subject to the sender's snapshot. It writes
// the error response itself and returns nil when the caller should stop.
func (h *TransferHandlers) authedSender(w http.ResponseWriter, r *http.Request, endpoint string) *domain.SenderSnapshot {
	userIDStr, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return nil
	}
	ownerID, err := uuid.Parse(userIDStr)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=invalid_user_id user_id=%s", endpoint, userIDStr)
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return nil
	}

	sender, err := h.profiles.GetTransferProfile(r.Context(), ownerID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=profile_fetch_failed owner_id=%s err=%v", endpoint, ownerID, err)
		http.Error(w, "Could not load sender profile", http.StatusBadGateway)
		return nil
	}
	return sender
}

// SubmitTransferHandler handles a confirmed transfer submission. The client
// has already walked the review step; the submission carries the frozen
// request plus the transaction PIN, and the gate is replayed server-side so
// nothing reaches the orchestrator without validation and a secret.
func (h *TransferHandlers) SubmitTransferHandler(w http.ResponseWriter, r *http.Request) {
	sender := h.authedSender(w, r, "submit_transfer")
	if sender == nil {
		return
	}

	var body submitTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Printf("level=warn component=api endpoint=submit_transfer outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	requestID := uuid.New()
	if body.RequestID != "" {
		parsed, err := uuid.Parse(body.RequestID)
		if err != nil {
			http.Error(w, "Invalid request_id format", http.StatusBadRequest)
			return
		}
		requestID = parsed
	}

	req := &domain.TransferRequest{
		ID:            requestID,
		OwnerID:       sender.OwnerID,
		Category:      body.Category,
		Amount:        body.Amount,
		Narration:     body.Narration,
		Bank:          body.Bank,
		Peer:          body.Peer,
		Fee:           body.Fee,
		TotalDebit:    body.TotalDebit,
		SaveRecipient: body.SaveRecipient,
	}

	gate, res := h.service.BeginConfirmation(req, *sender)
	if gate == nil {
		log.Printf("level=warn component=api endpoint=submit_transfer outcome=reject reason=%s request_id=%s owner_id=%s", res.Code, requestID, sender.OwnerID)
		h.writeJSON(w, http.StatusUnprocessableEntity, validationFailureResponse{Error: res.Message, Code: string(res.Code)})
		return
	}
	if err := gate.ConfirmReview(); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := gate.ProvideSecret(body.TransactionPIN); err != nil {
		if errors.Is(err, app.ErrSecretWrongLength) {
			http.Error(w, "Transaction PIN has the wrong length", http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	auth, err := gate.Authorized()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	outcome, err := h.service.SubmitTransfer(r.Context(), *sender, auth)
	if err != nil {
		var vErr *app.ValidationError
		if errors.As(err, &vErr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, validationFailureResponse{Error: vErr.Result.Message, Code: string(vErr.Result.Code)})
			return
		}
		log.Printf("level=error component=api endpoint=submit_transfer outcome=failed request_id=%s err=%v", requestID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Every orchestration run ends in a terminal outcome; failed states are a
	// result, not an HTTP error.
	h.writeJSON(w, http.StatusOK, outcome)
}

// QuoteFeeHandler returns the fee and total debit for a prospective transfer.
func (h *TransferHandlers) QuoteFeeHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount   int64                   `json:"amount"`
		Category domain.TransferCategory `json:"category"`
		Channel  string                  `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !body.Category.Valid() {
		http.Error(w, "Unknown transfer category", http.StatusBadRequest)
		return
	}

	quote, err := h.service.QuoteFee(r.Context(), body.Amount, body.Category, body.Channel)
	if err != nil {
		log.Printf("level=warn component=api endpoint=quote_fee outcome=failed category=%s amount=%d err=%v", body.Category, body.Amount, err)
		http.Error(w, "Fee service unavailable", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// ResolveRecipientHandler verifies a candidate recipient while the user types.
// A superseded lookup returns 204: the client already has newer input in
// flight and must not render this result.
func (h *TransferHandlers) ResolveRecipientHandler(w http.ResponseWriter, r *http.Request) {
	sender := h.authedSender(w, r, "resolve_recipient")
	if sender == nil {
		return
	}

	category := domain.TransferCategory(r.URL.Query().Get("category"))
	if !category.Valid() {
		http.Error(w, "Unknown transfer category", http.StatusBadRequest)
		return
	}
	query := app.RecipientQuery{
		BankCode:      r.URL.Query().Get("bank_code"),
		AccountNumber: r.URL.Query().Get("account_number"),
		PlatformQuery: r.URL.Query().Get("query"),
	}

	verification, err := h.resolver.Resolve(r.Context(), *sender, category, query)
	if err != nil {
		if errors.Is(err, app.ErrLookupSuperseded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("level=warn component=api endpoint=resolve_recipient outcome=failed owner_id=%s err=%v", sender.OwnerID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, verification)
}

// GetOutcomeHandler returns the audit record for one transfer request.
func (h *TransferHandlers) GetOutcomeHandler(w http.ResponseWriter, r *http.Request) {
	sender := h.authedSender(w, r, "get_outcome")
	if sender == nil {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		http.Error(w, "Invalid request ID format", http.StatusBadRequest)
		return
	}

	outcome, err := h.service.GetOutcome(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrOutcomeNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer outcome not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_outcome outcome=failed request_id=%s err=%v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if outcome.OwnerID != sender.OwnerID {
		// Do not leak the existence of other users' transfers.
		h.writeError(w, http.StatusNotFound, "Transfer outcome not found")
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// ListSavedRecipientsHandler returns the caller's saved recipients for a category.
func (h *TransferHandlers) ListSavedRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	sender := h.authedSender(w, r, "list_saved_recipients")
	if sender == nil {
		return
	}

	category := domain.TransferCategory(r.URL.Query().Get("category"))
	if !category.Valid() {
		http.Error(w, "Unknown transfer category", http.StatusBadRequest)
		return
	}

	recipients, err := h.service.ListSavedRecipients(r.Context(), sender.OwnerID, category)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_saved_recipients outcome=failed owner_id=%s err=%v", sender.OwnerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if recipients == nil {
		recipients = []domain.SavedRecipient{}
	}
	h.writeJSON(w, http.StatusOK, recipients)
}

// RemoveSavedRecipientHandler deletes one of the caller's saved recipients.
func (h *TransferHandlers) RemoveSavedRecipientHandler(w http.ResponseWriter, r *http.Request) {
	sender := h.authedSender(w, r, "remove_saved_recipient")
	if sender == nil {
		return
	}

	recipientID, err := uuid.Parse(chi.URLParam(r, "recipientID"))
	if err != nil {
		http.Error(w, "Invalid recipient ID format", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveSavedRecipient(r.Context(), sender.OwnerID, recipientID); err != nil {
		if errors.Is(err, store.ErrRecipientNotFound) {
			h.writeError(w, http.StatusNotFound, "Saved recipient not found")
			return
		}
		log.Printf("level=error component=api endpoint=remove_saved_recipient outcome=failed owner_id=%s recipient_id=%s err=%v", sender.OwnerID, recipientID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
