package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
)

const (
	walletsPath = "/wallets"
	topUpPath   = "/topup"
)

// WalletsViewModel is the data passed to the wallet list template.
type WalletsViewModel struct {
	Page
	Analytics  *models.Analytics
	Currencies []models.Currency
	Wallets    []models.Wallet
}

// Wallets lists the caller's wallets with a create form.
func (h *Handlers) Wallets(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	var vm WalletsViewModel
	var walletsErr, currenciesErr error

	// Analytics are decoration; their failure is only logged.
	analyticsErr := fetchAll(r.Context(),
		func(ctx context.Context) error {
			vm.Wallets, walletsErr = h.api.Wallets(ctx, s)
			return nil
		},
		func(ctx context.Context) error {
			vm.Currencies, currenciesErr = h.api.Currencies(ctx, s)
			return nil
		},
		func(ctx context.Context) (err error) {
			vm.Analytics, err = h.api.Analytics(ctx, s)
			return err
		},
	)
	err := errors.Join(walletsErr, currenciesErr)
	if errors.Is(err, api.ErrUnauthorized) || errors.Is(analyticsErr, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}

	vm.Page = h.page(w, r, "Wallets")
	if analyticsErr != nil {
		middleware.Logger(r.Context()).Debug("wallet analytics unavailable", "error", analyticsErr)
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("wallet fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to load wallets"}
	}
	h.render(w, r, "wallets.html", vm)
}

type createWalletForm struct {
	Currency string `validate:"required,alpha,len=3"`
}

// CreateWallet opens a wallet in the selected currency.
func (h *Handlers) CreateWallet(w http.ResponseWriter, r *http.Request) {
	form := createWalletForm{Currency: strings.ToUpper(strings.TrimSpace(r.FormValue("currency")))}
	if err := h.validate.Struct(form); err != nil {
		h.redirectFlash(w, r, walletsPath, "error", "Please select a currency")
		return
	}

	if _, err := h.api.CreateWallet(r.Context(), currentSession(r), form.Currency); err != nil {
		h.failed(w, r, err, "Failed to create wallet", walletsPath)
		return
	}
	h.redirectFlash(w, r, walletsPath, "success", "Wallet created")
}

// DeleteWallet removes an empty wallet.
func (h *Handlers) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.redirectFlash(w, r, walletsPath, "error", "Failed to delete wallet")
		return
	}

	if err := h.api.DeleteWallet(r.Context(), currentSession(r), id); err != nil {
		h.failed(w, r, err, "Failed to delete wallet", walletsPath)
		return
	}
	h.redirectFlash(w, r, walletsPath, "success", "Wallet deleted")
}

// TopUpViewModel is the data passed to the top-up template.
type TopUpViewModel struct {
	Page
	Wallets  []models.Wallet
	Selected string
}

// TopUpForm renders the top-up form. The wallet can be preselected with
// ?currency=.
func (h *Handlers) TopUpForm(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.api.Wallets(r.Context(), currentSession(r))
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}

	vm := TopUpViewModel{
		Page:     h.page(w, r, "Top Up"),
		Wallets:  wallets,
		Selected: strings.ToUpper(r.URL.Query().Get("currency")),
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("wallet fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to load wallets"}
	}
	h.render(w, r, "topup.html", vm)
}

type topUpForm struct {
	Currency string `validate:"required"`
	Amount   string `validate:"required"`
}

// TopUp adds funds to one of the caller's wallets.
func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	form := topUpForm{
		Currency: strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		Amount:   r.FormValue("amount"),
	}
	back := topUpPath + "?" + url.Values{"currency": {form.Currency}}.Encode()

	// A missing wallet outranks a bad amount.
	s := currentSession(r)
	wallets, err := h.api.Wallets(r.Context(), s)
	if err != nil {
		h.failed(w, r, err, "Top-up failed", back)
		return
	}
	if len(wallets) == 0 {
		h.redirectFlash(w, r, walletsPath, "error", "Please create a wallet first")
		return
	}

	amount, ok := parseAmount(form.Amount)
	if h.validate.Struct(form) != nil || !ok {
		h.redirectFlash(w, r, back, "error", "Enter a valid amount")
		return
	}

	res, err := h.api.TopUp(r.Context(), s, form.Currency, amount)
	if err != nil {
		h.failed(w, r, err, "Top-up failed", back)
		return
	}
	middleware.Logger(r.Context()).Info("wallet topped up", "currency", res.Currency, "new_balance", res.NewBalance.String())
	h.redirectFlash(w, r, back, "success", "Wallet topped up successfully")
}
