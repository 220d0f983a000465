package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
)

const (
	recentTransactions = 5
	favoriteChoices    = 8
)

// ConverterView is the state of the dashboard currency converter.
type ConverterView struct {
	From   string
	To     string
	Amount string
	Result string
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Page
	Analytics       *models.Analytics
	Currencies      []models.Currency
	FavoriteChoices []models.Currency
	Favorites       []string
	Wallets         []models.Wallet
	Recent          []models.Transaction
	Converter       ConverterView
}

// fetchAll runs every fetch concurrently and waits for all of them to settle.
// The returned error joins every failure, so errors.Is finds a rejected
// credential even when another fetch failed first.
func fetchAll(ctx context.Context, fetches ...func(context.Context) error) error {
	var g errgroup.Group
	errs := make([]error, len(fetches))
	for i, fetch := range fetches {
		g.Go(func() error {
			errs[i] = fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Dashboard renders the overview page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, ConverterView{From: "USD", To: "INR", Amount: "1"}, nil)
}

func (h *Handlers) renderDashboard(w http.ResponseWriter, r *http.Request, conv ConverterView, flash *Flash) {
	s := currentSession(r)
	vm := DashboardViewModel{Converter: conv}

	err := fetchAll(r.Context(),
		func(ctx context.Context) (err error) {
			vm.Analytics, err = h.api.Analytics(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Currencies, err = h.api.Currencies(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Favorites, err = h.api.Favorites(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Wallets, err = h.api.Wallets(ctx, s)
			return err
		},
		func(ctx context.Context) (err error) {
			vm.Recent, err = h.api.Transactions(ctx, s, api.TransactionFilter{Limit: recentTransactions})
			return err
		},
	)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}

	vm.Page = h.page(w, r, "Dashboard")
	if err != nil {
		middleware.Logger(r.Context()).Warn("dashboard fetch failed", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Failed to load dashboard"}
	} else if flash != nil {
		vm.Flash = flash
	}

	if len(vm.Recent) > recentTransactions {
		vm.Recent = vm.Recent[:recentTransactions]
	}
	vm.FavoriteChoices = vm.Currencies[:min(len(vm.Currencies), favoriteChoices)]

	h.render(w, r, "dashboard.html", vm)
}

// Convert quotes a conversion and shows the result on the dashboard.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	conv := ConverterView{
		From:   strings.ToUpper(r.FormValue("from_currency")),
		To:     strings.ToUpper(r.FormValue("to_currency")),
		Amount: strings.TrimSpace(r.FormValue("amount")),
	}

	amount, ok := parseAmount(conv.Amount)
	if !ok || conv.From == "" || conv.To == "" {
		h.renderDashboard(w, r, conv, &Flash{Kind: "error", Message: "Conversion failed"})
		return
	}

	res, err := h.api.Convert(r.Context(), currentSession(r), conv.From, conv.To, amount)
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("conversion failed", "error", err)
		h.renderDashboard(w, r, conv, &Flash{Kind: "error", Message: "Conversion failed"})
		return
	}

	conv.Result = res.ConvertedAmount.StringFixed(2)
	h.renderDashboard(w, r, conv, nil)
}

// ToggleFavorite stars or unstars a currency.
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	s := currentSession(r)

	favorites, err := h.api.Favorites(r.Context(), s)
	if err == nil {
		if slices.Contains(favorites, code) {
			err = h.api.RemoveFavorite(r.Context(), s, code)
		} else {
			err = h.api.AddFavorite(r.Context(), s, code)
		}
	}
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}
	if err != nil {
		middleware.Logger(r.Context()).Warn("favorite toggle failed", "currency", code, "error", err)
		h.redirectFlash(w, r, auth.DashboardPath, "error", "Failed to update favorites")
		return
	}
	auth.Redirect(w, r, auth.DashboardPath)
}
