package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the profile of an account as returned by the API.
type User struct {
	ID              int64     `json:"id,omitempty"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name"`
	ProfilePhotoURL string    `json:"profile_photo_url,omitempty"`
	IsStaff         bool      `json:"is_staff"`
	IsSuperuser     bool      `json:"is_superuser"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuthResponse is returned by login and signup.
type AuthResponse struct {
	Message string `json:"message,omitempty"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// ProfileUpdate is returned after a profile edit.
type ProfileUpdate struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// PhotoResult is returned after a profile photo upload.
type PhotoResult struct {
	Message      string `json:"message"`
	ProfilePhoto string `json:"profile_photo"`
}

// WalletSummary aggregates wallet balances for one currency across all users.
type WalletSummary struct {
	Currency     string          `json:"currency"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Count        int             `json:"count"`
}

// AdminStats is the platform-wide aggregate shown on the admin dashboard.
type AdminStats struct {
	TotalUsers        int             `json:"total_users"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
	TotalTransactions int             `json:"total_transactions"`
	ActiveCurrencies  int             `json:"active_currencies"`
	WalletsSummary    []WalletSummary `json:"wallets_summary"`
}

// ToggleResult is returned after enabling or disabling a user.
type ToggleResult struct {
	Message  string `json:"message"`
	IsActive bool   `json:"is_active"`
}
