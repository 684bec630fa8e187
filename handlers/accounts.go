package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"marquee/internal/auth"
	"marquee/models"
	"marquee/services/accounts"
)

type accountCreator interface {
	Create(username, password string) (models.Account, error)
}

// AccountsHandler lets the master account add sign-in accounts.
type AccountsHandler struct {
	accounts accountCreator
}

func NewAccountsHandler(accountsSvc accountCreator) *AccountsHandler {
	return &AccountsHandler{accounts: accountsSvc}
}

// CreateAccountRequest is the body of POST /api/accounts.
type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create adds an account. Only the master account may call it.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSession(r)
	if !ok || !session.IsMaster {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "master account required"})
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	account, err := h.accounts.Create(req.Username, req.Password)
	switch {
	case errors.Is(err, accounts.ErrUsernameRequired), errors.Is(err, accounts.ErrPasswordRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, accounts.ErrUsernameExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		log.Printf("[accounts] create %q failed: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	log.Printf("[accounts] %s created account %s (%s)", session.AccountID, account.ID, account.Username)
	writeJSON(w, http.StatusCreated, AccountResponse{
		ID:       account.ID,
		Username: account.Username,
		IsMaster: account.IsMaster,
	})
}
