package api

import (
	"context"
	"net/http"

	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/money"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	"github.com/gorilla/mux"
)

const defaultTransactionLimit = 50

// OpenWallet opens a wallet in the requested currency for the caller
func (h *Handler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(w, r)
	if !ok {
		return
	}

	var req openWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.wallets.OpenWallet(r.Context(), account, req.Currency)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/wallets/"+created.ID)
	respondJSON(w, http.StatusCreated, newWalletResponse(created))
}

// GetWallet returns one of the caller's wallets
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	found, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newWalletResponse(found))
}

// CloseWallet closes an empty wallet
func (h *Handler) CloseWallet(w http.ResponseWriter, r *http.Request) {
	found, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}

	closed, err := h.wallets.CloseWallet(r.Context(), found.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newWalletResponse(closed))
}

// ListWallets lists the caller's wallets
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownAccount(w, r)
	if !ok {
		return
	}

	wallets, err := h.wallets.ListWallets(r.Context(), account)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	out := make([]*walletResponse, 0, len(wallets))
	for _, found := range wallets {
		out = append(out, newWalletResponse(found))
	}
	respondJSON(w, http.StatusOK, out)
}

// Deposit credits a wallet. Without a wallet id in the path the caller's wallet
// for the requested currency is used, and opened if it does not exist yet.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.wallets.Deposit)
}

// Withdraw debits one of the caller's wallets
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.wallets.Withdraw)
}

type transferFunc func(ctx context.Context, req *wallet.TransferRequest) (*entities.Transaction, bool, error)

// transfer answers 201 for a new ledger entry and 200 when the key was already applied
func (h *Handler) transfer(w http.ResponseWriter, r *http.Request, apply transferFunc) {
	account, ok := accountID(w, r)
	if !ok {
		return
	}
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	walletID := mux.Vars(r)["id"]
	code := req.Currency
	if walletID != "" {
		found, ok := h.ownedWallet(w, r)
		if !ok {
			return
		}
		if code == "" {
			code = found.Currency
		}
	}

	currency, err := money.Lookup(code)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Unsupported currency")
		return
	}
	amount, err := money.ParseMajor(req.Amount, currency)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tx, created, err := apply(r.Context(), &wallet.TransferRequest{
		AccountID:      account,
		WalletID:       walletID,
		Currency:       currency.Code,
		Amount:         amount,
		IdempotencyKey: key,
		Reference:      req.Reference,
		Note:           req.Note,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, newTransactionResponse(tx, currency.Code))
}

// GetTransactions lists a wallet's most recent ledger entries, newest first
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	found, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}

	txs, err := h.wallets.GetRecentTransactions(r.Context(), found.ID, queryInt(r, "limit", defaultTransactionLimit))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newTransactionResponses(txs, found.Currency))
}

// ReconcileWallet compares a wallet's balance with the sum of its ledger.
// A mismatch answers 409 with the report.
func (h *Handler) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	found, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}

	report, err := h.wallets.Reconcile(r.Context(), found.ID)
	if err != nil && !types.IsCode(err, types.ErrLedgerMismatch) {
		h.respondServiceError(w, err)
		return
	}
	if err != nil {
		h.logger.LogError(err)
		respondJSON(w, http.StatusConflict, report)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ownedWallet loads the wallet named in the path. Wallets of other accounts are reported as missing.
func (h *Handler) ownedWallet(w http.ResponseWriter, r *http.Request) (*entities.Wallet, bool) {
	account, ok := accountID(w, r)
	if !ok {
		return nil, false
	}

	found, err := h.wallets.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	if found.AccountID != account {
		respondError(w, http.StatusNotFound, "wallet not found")
		return nil, false
	}
	return found, true
}
