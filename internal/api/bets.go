package api

import (
	"net/http"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/money"
	"github.com/gorilla/mux"
)

const defaultResultLimit = 50

// PlaceBet settles a bet. A new settlement answers 201, a replay of a settled key answers 200.
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(w, r)
	if !ok {
		return
	}
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}

	var req betRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	currency, err := money.Lookup(req.Currency)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Unsupported currency")
		return
	}
	amount, err := money.ParseMajor(req.Amount, currency)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	receipt, err := h.settler.PlaceBet(r.Context(), &entities.BetRequest{
		AccountID:      account,
		WalletID:       req.WalletID,
		GameID:         req.GameID,
		Amount:         amount,
		Currency:       currency.Code,
		IdempotencyKey: key,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/results/"+receipt.ResultID)
	respondJSON(w, status, newReceiptResponse(receipt))
}

// GetResult returns one of the caller's results with its ledger entries
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(w, r)
	if !ok {
		return
	}

	result, ok := h.ownedResult(w, r, account)
	if !ok {
		return
	}

	txs, err := h.wallets.GetTransactionsByResult(r.Context(), result.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := newResultResponse(result)
	resp.Transactions = newTransactionResponses(txs, result.Currency)
	respondJSON(w, http.StatusOK, resp)
}

// GetAccountResults lists the caller's most recent results
func (h *Handler) GetAccountResults(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownAccount(w, r)
	if !ok {
		return
	}

	results, err := h.wallets.GetAccountResults(r.Context(), account, queryInt(r, "limit", defaultResultLimit))
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

// ownedResult loads the result named in the path. Results of other accounts are reported as missing.
func (h *Handler) ownedResult(w http.ResponseWriter, r *http.Request, account string) (*entities.GameResult, bool) {
	result, err := h.settler.GetResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	if result.AccountID != account {
		respondError(w, http.StatusNotFound, "game result not found")
		return nil, false
	}
	return result, true
}

// ownAccount checks the account in the path is the caller's
func (h *Handler) ownAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := accountID(w, r)
	if !ok {
		return "", false
	}
	if mux.Vars(r)["id"] != account {
		respondError(w, http.StatusForbidden, "Account does not match "+accountHeader)
		return "", false
	}
	return account, true
}
