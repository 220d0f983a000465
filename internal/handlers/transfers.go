package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
)

const (
	sendMoneyPath     = "/send-money"
	transactionsPath  = "/transactions"
	defaultToCurrency = "INR"
)

var errValidation = errors.New("validation failed")

// SendMoneyViewModel is the data passed to the send money template.
type SendMoneyViewModel struct {
	Page
	Wallets    []models.Wallet
	Currencies []models.Currency
	DefaultTo  string
}

// SendMoneyForm renders the transfer form.
func (h *Handlers) SendMoneyForm(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	vm := SendMoneyViewModel{DefaultTo: defaultToCurrency}

	err := fetchAll(r.Context(),
		func(ctx context.Context) (err error) {
			vm.Wallets, err = h.api.Wallets(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Currencies, err = h.api.Currencies(ctx, s)
			return err
		},
	)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}

	vm.Page = h.page(w, r, "Send Money")
	if err != nil {
		middleware.Logger(r.Context()).Warn("send money fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to load wallets"}
	}
	h.render(w, r, "send_money.html", vm)
}

type sendMoneyForm struct {
	ReceiverEmail string `validate:"required,email"`
	FromCurrency  string `validate:"required"`
	ToCurrency    string `validate:"required"`
	Amount        string `validate:"required"`
}

func (h *Handlers) parseSendMoney(r *http.Request) (models.SendMoneyRequest, error) {
	form := sendMoneyForm{
		ReceiverEmail: strings.TrimSpace(r.FormValue("receiver_email")),
		FromCurrency:  strings.ToUpper(r.FormValue("from_currency")),
		ToCurrency:    strings.ToUpper(r.FormValue("to_currency")),
		Amount:        r.FormValue("amount"),
	}
	if err := h.validate.Struct(form); err != nil {
		return models.SendMoneyRequest{}, fmt.Errorf("%w: %v", errValidation, err)
	}
	amount, ok := parseAmount(form.Amount)
	if !ok {
		return models.SendMoneyRequest{}, fmt.Errorf("%w: amount %q", errValidation, form.Amount)
	}
	return models.SendMoneyRequest{
		ReceiverEmail: form.ReceiverEmail,
		FromCurrency:  form.FromCurrency,
		ToCurrency:    form.ToCurrency,
		Amount:        amount,
	}, nil
}

// SendMoney transfers funds to another user, converting if needed.
func (h *Handlers) SendMoney(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSendMoney(r)
	if err != nil {
		middleware.Logger(r.Context()).Debug("send money rejected", "error", err)
		h.redirectFlash(w, r, sendMoneyPath, "error", "Please enter valid details")
		return
	}

	s := currentSession(r)
	wallets, err := h.api.Wallets(r.Context(), s)
	if err != nil {
		h.failed(w, r, err, "Transaction failed", sendMoneyPath)
		return
	}
	if len(wallets) == 0 {
		h.redirectFlash(w, r, walletsPath, "error", "Please create a wallet first")
		return
	}

	res, err := h.api.SendMoney(r.Context(), s, req)
	if err != nil {
		h.failed(w, r, err, "Transaction failed", sendMoneyPath)
		return
	}
	middleware.Logger(r.Context()).Info("money sent",
		"to", req.ReceiverEmail, "sent", res.Sent.String(), "received", res.Received.String())
	h.redirectFlash(w, r, sendMoneyPath, "success", "Money sent successfully")
}

// TransactionsViewModel is the data passed to the transactions template.
type TransactionsViewModel struct {
	Page
	Filter    api.TransactionFilter
	ExportURL template.URL
	Groups    []TransactionGroup
}

func filterFromQuery(r *http.Request) api.TransactionFilter {
	q := r.URL.Query()
	f := api.TransactionFilter{
		Search:    strings.TrimSpace(q.Get("search")),
		Currency:  strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
	if t := q.Get("type"); t == models.TransactionSent || t == models.TransactionReceived {
		f.Type = t
	}
	// Malformed dates are dropped rather than forwarded
	if _, err := time.Parse(time.DateOnly, f.StartDate); err != nil {
		f.StartDate = ""
	}
	if _, err := time.Parse(time.DateOnly, f.EndDate); err != nil {
		f.EndDate = ""
	}
	return f
}

// Transactions lists the caller's history, filtered and grouped by day.
func (h *Handlers) Transactions(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	txs, err := h.api.Transactions(r.Context(), currentSession(r), filter)
	if errors.Is(err, api.ErrUnauthorized) {
		h.redirectFlash(w, r, auth.LoginPath, "error", "Session expired. Please login again.")
		return
	}

	exportURL := transactionsPath + "/export"
	if q := filter.Query().Encode(); q != "" {
		exportURL += "?" + q
	}
	vm := TransactionsViewModel{
		Page:      h.page(w, r, "Transactions"),
		Filter:    filter,
		ExportURL: template.URL(exportURL),
		Groups:    groupByDay(txs, time.Now()),
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("transaction fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: api.Message(err, "Failed to load transactions")}
	}
	h.render(w, r, "transactions.html", vm)
}

// ExportTransactions streams the filtered history as a CSV download.
func (h *Handlers) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.ExportTransactions(r.Context(), currentSession(r), filterFromQuery(r))
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			auth.Redirect(w, r, auth.LoginPath)
			return
		}
		middleware.Logger(r.Context()).Warn("transaction export failed", "error", err)
		h.redirectFlash(w, r, transactionsPath, "error", "Failed to export transactions")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if _, err := io.Copy(w, body); err != nil {
		middleware.Logger(r.Context()).Error("transaction export interrupted", "error", err)
	}
}
