package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulule/limiter/v3"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/config"
	"wallet-web/internal/handlers"
	"wallet-web/internal/middleware"
	"wallet-web/internal/session"
	"wallet-web/internal/storage"
	"wallet-web/web"
)

const sessionCleanupInterval = time.Hour

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewManager(db, cfg.SessionTTL, cfg.SecureCookie)
	sessions.StartCleanup(ctx, sessionCleanupInterval)

	loginLimit, err := middleware.NewLimiter(cfg.LoginRate)
	if err != nil {
		return err
	}

	client := api.New(cfg.APIBaseURL, api.WithTimeout(cfg.APITimeout), api.WithLogger(logger))
	h := handlers.NewHandlers(client, sessions, cfg.SecureCookie)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, sessions, loginLimit, logger, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "api", client.BaseURL())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRouter wires every page behind its guard. Static files come from
// staticDir when set and from the embedded assets otherwise.
func setupRouter(h *handlers.Handlers, sessions *session.Manager, loginLimit *limiter.Limiter, logger *slog.Logger, staticDir string) http.Handler {
	mux := http.NewServeMux()

	var static http.FileSystem
	if staticDir != "" {
		static = http.Dir(staticDir)
	} else {
		sub, err := fs.Sub(web.Static, "static")
		if err != nil {
			panic(err)
		}
		static = http.FS(sub)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(static)))

	limited := middleware.RateLimit(loginLimit, http.MethodPost)
	protected := auth.Guard(auth.Protected).Wrap
	admin := auth.Guard(auth.AdminProtected).Wrap

	// Public
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.Handle("POST /login", limited(http.HandlerFunc(h.Login)))
	mux.HandleFunc("GET /signup", h.SignupForm)
	mux.Handle("POST /signup", limited(http.HandlerFunc(h.Signup)))
	mux.HandleFunc("POST /logout", h.Logout)

	// Authenticated
	mux.Handle("GET /dashboard", protected(http.HandlerFunc(h.Dashboard)))
	mux.Handle("POST /dashboard/convert", protected(http.HandlerFunc(h.Convert)))
	mux.Handle("POST /favorites/{code}", protected(http.HandlerFunc(h.ToggleFavorite)))
	mux.Handle("GET /wallets", protected(http.HandlerFunc(h.Wallets)))
	mux.Handle("POST /wallets", protected(http.HandlerFunc(h.CreateWallet)))
	mux.Handle("POST /wallets/{id}/delete", protected(http.HandlerFunc(h.DeleteWallet)))
	mux.Handle("GET /topup", protected(http.HandlerFunc(h.TopUpForm)))
	mux.Handle("POST /topup", protected(http.HandlerFunc(h.TopUp)))
	mux.Handle("GET /send-money", protected(http.HandlerFunc(h.SendMoneyForm)))
	mux.Handle("POST /send-money", protected(http.HandlerFunc(h.SendMoney)))
	mux.Handle("GET /transactions", protected(http.HandlerFunc(h.Transactions)))
	mux.Handle("GET /transactions/export", protected(http.HandlerFunc(h.ExportTransactions)))
	mux.Handle("GET /profile", protected(http.HandlerFunc(h.Profile)))
	mux.Handle("POST /profile", protected(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("POST /profile/photo", protected(http.HandlerFunc(h.UploadPhoto)))

	// Staff
	mux.Handle("GET /admin", admin(http.HandlerFunc(h.AdminDashboard)))
	mux.Handle("POST /admin/users/{id}/toggle-status", admin(http.HandlerFunc(h.ToggleUserStatus)))

	mux.HandleFunc("/", h.NotFound)

	return middleware.Logging(logger)(sessions.Middleware(h.CSRF(mux)))
}
