package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// requireOperator admits requests carrying the operator token
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(operatorHeader)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Missing "+operatorHeader+" header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.operatorToken)) != 1 {
			respondError(w, http.StatusForbidden, "Invalid operator token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListFailedResults lists results whose debit is held until compensated
func (h *Handler) ListFailedResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.wallets.GetFailedResults(r.Context(), queryInt(r, "limit", defaultResultLimit))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	out := make([]*resultResponse, 0, len(results))
	for _, result := range results {
		out = append(out, newResultResponse(result))
	}
	respondJSON(w, http.StatusOK, out)
}

// CompensateResult refunds the bet of a failed result. Repeating it returns the same refund.
func (h *Handler) CompensateResult(w http.ResponseWriter, r *http.Request) {
	var req compensateRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.settler.GetResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = result.FailureReason
	}
	refund, err := h.wallets.Compensate(r.Context(), result.ID, reason)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.logger.Info("operator compensated result %s for account %s", result.ID, result.AccountID)
	respondJSON(w, http.StatusOK, newTransactionResponse(refund, result.Currency))
}

// ReconcileBets runs one reconciliation pass. ?compensate=true refunds every failed bet found.
func (h *Handler) ReconcileBets(w http.ResponseWriter, r *http.Request) {
	compensate, _ := strconv.ParseBool(r.URL.Query().Get("compensate"))

	report, err := h.settler.Reconcile(r.Context(), compensate)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	currencies := make(map[string]string, len(report.Failed))
	resp := &reconcileResponse{
		OrphansRecovered: report.OrphansRecovered,
		Failed:           make([]*resultResponse, 0, len(report.Failed)),
		Compensated:      make([]*transactionResponse, 0, len(report.Compensated)),
		Errors:           report.Errors,
	}
	for _, result := range report.Failed {
		currencies[result.ID] = result.Currency
		resp.Failed = append(resp.Failed, newResultResponse(result))
	}
	for _, refund := range report.Compensated {
		resp.Compensated = append(resp.Compensated, newTransactionResponse(refund, currencies[refund.ResultID]))
	}
	respondJSON(w, http.StatusOK, resp)
}
