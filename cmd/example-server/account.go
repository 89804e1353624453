package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sentinela-gateway/middleware/guard"
)

const maxHistory = 100

type entry struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	Reference    string    `json:"reference"`
	BalanceAfter float64   `json:"balanceAfter"`
	At           time.Time `json:"at"`
	ClientID     string    `json:"clientId"`
}

// account é a conta demo servida atrás do gateway. Estado só em memória.
type account struct {
	mu       sync.Mutex
	id       string
	currency string
	balance  float64
	history  []entry // mais recente primeiro
	now      func() time.Time
}

func newAccount() *account {
	return &account{id: "demo-account", currency: "USD", balance: 10000, now: time.Now}
}

func (a *account) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/balance", a.balanceHandler)
	r.Post("/api/transaction", a.transactionHandler)
	r.Get("/api/history", a.historyHandler)
	return r
}

func (a *account) balanceHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	guard.WriteJSON(w, http.StatusOK, map[string]any{
		"accountId": a.id,
		"balance":   a.balance,
		"currency":  a.currency,
		"clientId":  guard.ClientIP(r),
	})
}

type transactionRequest struct {
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
}

func (a *account) transactionHandler(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := guard.DecodeJSON(r, &req); err != nil {
		guard.WriteMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Type != "credit" && req.Type != "debit" {
		guard.WriteMessage(w, http.StatusBadRequest, "type must be credit or debit")
		return
	}
	if req.Amount <= 0 {
		guard.WriteMessage(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}
	if req.Reference == "" {
		req.Reference = "N/A"
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// 401 de propósito: alimenta a regra de acessos não autorizados na demo
	if req.Type == "debit" && req.Amount > a.balance {
		guard.WriteMessage(w, http.StatusUnauthorized, "insufficient funds")
		return
	}
	if req.Type == "credit" {
		a.balance += req.Amount
	} else {
		a.balance -= req.Amount
	}

	e := entry{
		ID:           uuid.NewString(),
		Type:         req.Type,
		Amount:       req.Amount,
		Reference:    req.Reference,
		BalanceAfter: a.balance,
		At:           a.now().UTC(),
		ClientID:     guard.ClientIP(r),
	}
	a.history = append([]entry{e}, a.history...)
	if len(a.history) > maxHistory {
		a.history = a.history[:maxHistory]
	}
	guard.WriteJSON(w, http.StatusCreated, map[string]any{"message": "transaction recorded", "entry": e})
}

func (a *account) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	limit = min(limit, maxHistory)

	a.mu.Lock()
	defer a.mu.Unlock()
	items := append([]entry{}, a.history[:min(limit, len(a.history))]...)
	guard.WriteJSON(w, http.StatusOK, map[string]any{"accountId": a.id, "count": limit, "items": items})
}
