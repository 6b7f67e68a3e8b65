/**
 * @description
 * This file contains the HTTP handlers for the billing-service's API
 * endpoints. Handlers parse incoming requests, call the batch runner or the
 * account operations service, and write the HTTP response.
 *
 * @notes
 * - Pass triggers always return 200 with a report carrying `errors[]` for
 *   partial failures. Failure status codes are reserved for a total
 *   enumeration failure (ledger store unreachable).
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/app"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
)

// PassRunner triggers billing passes. Satisfied by *app.Runner.
type PassRunner interface {
	RunPass(ctx context.Context, pass domain.PassType, asOf time.Time) (*domain.BatchReport, error)
}

// AccountOperations is the manual-operation surface. Satisfied by *app.Service.
type AccountOperations interface {
	RecordPayment(ctx context.Context, accountID uuid.UUID, amountMinor int64, source string) (*app.PaymentResult, error)
	AdjustBalance(ctx context.Context, accountID uuid.UUID, deltaMinor int64, reason string) (int64, error)
	SetStatus(ctx context.Context, accountID uuid.UUID, status domain.AccountStatus) error
	SessionCost(ctx context.Context, accountID uuid.UUID, start, end time.Time) (*domain.SessionCost, error)
}

// Handlers holds the collaborators the HTTP layer dispatches to.
type Handlers struct {
	runner  PassRunner
	service AccountOperations
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(runner PassRunner, service AccountOperations) *Handlers {
	return &Handlers{runner: runner, service: service}
}

type paymentRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Source      string `json:"source"`
}

type adjustRequest struct {
	DeltaMinor int64  `json:"delta_minor"`
	Reason     string `json:"reason"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type sessionCostRequest struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

type sessionCostResponse struct {
	DurationMinutes int64   `json:"duration_minutes"`
	Cost            float64 `json:"cost"`
	HourlyRate      float64 `json:"hourly_rate"`
}

type combinedRunRequest struct {
	Passes []string `json:"passes"`
}

// notificationReport is the trimmed shape returned for the notifications pass.
type notificationReport struct {
	Sent          int                         `json:"sent"`
	Notifications []domain.NotificationRecord `json:"notifications"`
	Errors        []domain.AccountError       `json:"errors"`
}

// RunPassHandler triggers a single pass by name.
func (h *Handlers) RunPassHandler(w http.ResponseWriter, r *http.Request) {
	pass, err := domain.ParsePassType(chi.URLParam(r, "pass"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.runner.RunPass(r.Context(), pass, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, passResponse(pass, report))
}

// RunCombinedHandler triggers an arbitrary subset of passes; each runs
// independently and reports under its own key.
func (h *Handlers) RunCombinedHandler(w http.ResponseWriter, r *http.Request) {
	var req combinedRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Passes) == 0 {
		writeError(w, http.StatusBadRequest, "passes list is empty")
		return
	}

	results := make(map[string]interface{}, len(req.Passes))
	for _, name := range req.Passes {
		pass, err := domain.ParsePassType(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		report, err := h.runner.RunPass(r.Context(), pass, time.Now())
		if err != nil {
			results[name] = map[string]string{"error": err.Error()}
			continue
		}
		results[name] = passResponse(pass, report)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// PaymentHandler records a payment against an account.
func (h *Handlers) PaymentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.RecordPayment(r.Context(), accountID, req.AmountMinor, req.Source)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdjustHandler applies a manual balance correction.
func (h *Handlers) AdjustHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newBalance, err := h.service.AdjustBalance(r.Context(), accountID, req.DeltaMinor, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":        accountID,
		"new_balance_minor": newBalance,
	})
}

// StatusHandler is the operator block/unblock override.
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := domain.AccountStatus(req.Status)
	switch status {
	case domain.AccountActive, domain.AccountBlocked, domain.AccountSuspended:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := h.service.SetStatus(r.Context(), accountID, status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"status":     status,
	})
}

// SessionCostHandler prices an ad-hoc session window for an account.
func (h *Handlers) SessionCostHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req sessionCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cost, err := h.service.SessionCost(r.Context(), accountID, req.StartedAt, req.EndedAt)
	if err != nil {
		if errors.Is(err, app.ErrInvalidBillingWindow) || errors.Is(err, app.ErrTariffMisconfigured) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionCostResponse{
		DurationMinutes: cost.DurationMinutes,
		Cost:            float64(cost.CostMinor) / 100,
		HourlyRate:      float64(cost.HourlyRateMinor) / 100,
	})
}

// passResponse picks the wire shape for a pass report: the notifications pass
// returns {sent, notifications, errors}, charge passes return the full report.
func passResponse(pass domain.PassType, report *domain.BatchReport) interface{} {
	if pass == domain.PassNotifications {
		return notificationReport{
			Sent:          report.Sent,
			Notifications: report.Notifications,
			Errors:        report.Errors,
		}
	}
	return report
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound), errors.Is(err, store.ErrTariffNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
