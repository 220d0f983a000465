package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
)

const adminUsersPath = "/admin?tab=users"

var adminTabs = map[string]bool{"overview": true, "users": true, "txs": true, "currencies": true}

// AdminViewModel is the data passed to the admin template.
type AdminViewModel struct {
	Page
	Tab          string
	Stats        *models.AdminStats
	Summary      []SummaryItem
	Users        []models.User
	Transactions []models.Transaction
	Currencies   []models.Currency
}

// AdminDashboard renders the platform overview for staff.
func (h *Handlers) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	if !adminTabs[tab] {
		tab = "overview"
	}

	s := currentSession(r)
	vm := AdminViewModel{Tab: tab}
	err := fetchAll(r.Context(),
		func(ctx context.Context) (err error) {
			vm.Stats, err = h.api.AdminStats(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Users, err = h.api.AdminUsers(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Transactions, err = h.api.AdminTransactions(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Currencies, err = h.api.AdminCurrencies(ctx, s)
			return err
		},
	)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}

	vm.Page = h.page(w, r, "Admin")
	if err != nil {
		middleware.Logger(r.Context()).Warn("admin fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to fetch admin data"}
	}
	if vm.Stats != nil {
		vm.Summary = summarize(vm.Stats.WalletsSummary)
	}
	h.render(w, r, "admin.html", vm)
}

// ToggleUserStatus enables or disables a user account.
func (h *Handlers) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.redirectFlash(w, r, adminUsersPath, "error", "Failed to update user status")
		return
	}

	res, err := h.api.ToggleUserStatus(r.Context(), currentSession(r), id)
	if err != nil {
		h.failed(w, r, err, "Failed to update user status", adminUsersPath)
		return
	}
	middleware.Logger(r.Context()).Info("user status changed", "user_id", id, "active", res.IsActive)

	msg := res.Message
	if msg == "" {
		msg = "User status updated"
	}
	h.redirectFlash(w, r, adminUsersPath, "success", msg)
}
