package handlers

import (
	"errors"
	"net/http"
	"strings"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/models"
	"wallet-web/internal/session"
)

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Page
	Email string
}

type loginForm struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// Already logged in
	if auth.IsAuthenticated(currentSession(r)) {
		auth.Redirect(w, r, auth.DashboardPath)
		return
	}
	h.render(w, r, "login.html", LoginViewModel{Page: h.page(w, r, "Login")})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	form := loginForm{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	vm := LoginViewModel{Page: h.page(w, r, "Login"), Email: form.Email}

	if err := h.validate.Struct(form); err != nil {
		vm.Flash = &Flash{Kind: "error", Message: "Email and password are required"}
		h.render(w, r, "login.html", vm)
		return
	}

	res, err := h.api.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		middleware.Logger(r.Context()).Info("login rejected", "email", form.Email, "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Invalid credentials"}
		h.render(w, r, "login.html", vm)
		return
	}

	if err := h.startSession(w, r, res); err != nil {
		middleware.Logger(r.Context()).Error("failed to store session", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "An error occurred. Please try again."}
		h.render(w, r, "login.html", vm)
		return
	}

	h.redirectFlash(w, r, auth.DashboardPath, "success", "Login successful")
}

// SignupViewModel holds data for the signup page.
type SignupViewModel struct {
	Page
	FullName string
	Email    string
}

type signupForm struct {
	FullName string `validate:"required"`
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// SignupForm renders the signup page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signup.html", SignupViewModel{Page: h.page(w, r, "Sign up")})
}

// Signup handles the signup form submission.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	form := signupForm{
		FullName: strings.TrimSpace(r.FormValue("full_name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	vm := SignupViewModel{Page: h.page(w, r, "Sign up"), FullName: form.FullName, Email: form.Email}

	if err := h.validate.Struct(form); err != nil {
		vm.Flash = &Flash{Kind: "error", Message: "All fields are required"}
		h.render(w, r, "signup.html", vm)
		return
	}

	res, err := h.api.Signup(r.Context(), form.FullName, form.Email, form.Password)
	if err != nil {
		msg := api.FieldMessage(err, "email")
		if msg == "" {
			msg = api.FieldMessage(err, "full_name")
		}
		if msg == "" {
			msg = "Signup failed"
		}
		vm.Flash = &Flash{Kind: "error", Message: msg}
		h.render(w, r, "signup.html", vm)
		return
	}

	if err := h.startSession(w, r, res); err != nil {
		middleware.Logger(r.Context()).Error("failed to store session", "error", err)
		vm.Flash = &Flash{Kind: "error", Message: "Signup failed"}
		h.render(w, r, "signup.html", vm)
		return
	}

	h.redirectFlash(w, r, auth.DashboardPath, "success", "Signup successful")
}

// startSession stores the credentials and cached profile of a fresh login
// under a newly issued session id.
// The auth response may carry only name and email, so the full profile is
// fetched to learn the role flags; if that fails the response user is cached.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, res *models.AuthResponse) error {
	s, err := h.sessions.Rotate(w, r)
	if err != nil {
		return err
	}
	if err := s.Save(session.Credentials{Access: res.Access, Refresh: res.Refresh}); err != nil {
		return err
	}

	user := res.User
	profile, err := h.api.Profile(r.Context(), s)
	switch {
	case err == nil:
		user = *profile
	case errors.Is(err, api.ErrUnauthorized):
		return err
	default:
		middleware.Logger(r.Context()).Warn("profile fetch after login failed", "error", err)
	}
	return s.SaveUser(user)
}

// Logout clears the session and returns to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if s := currentSession(r); s != nil {
		if err := s.Clear(); err != nil {
			middleware.Logger(r.Context()).Error("failed to clear session", "error", err)
		}
	}
	if err := h.sessions.Destroy(w, r); err != nil {
		middleware.Logger(r.Context()).Error("failed to delete session", "error", err)
	}
	auth.Redirect(w, r, auth.LoginPath)
}
