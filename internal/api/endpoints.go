package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"wallet-web/internal/models"
)

// Login exchanges email and password for credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, nil, http.MethodPost, "/login/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account and returns its credentials.
func (c *Client) Signup(ctx context.Context, fullName, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	in := map[string]string{"full_name": fullName, "email": email, "password": password}
	if err := c.doJSON(ctx, nil, http.MethodPost, "/signup/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the caller's profile.
func (c *Client) Profile(ctx context.Context, creds Credentials) (*models.User, error) {
	var out models.User
	if err := c.doJSON(ctx, creds, http.MethodGet, "/profile/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the caller's display name.
func (c *Client) UpdateProfile(ctx context.Context, creds Credentials, fullName string) (*models.ProfileUpdate, error) {
	var out models.ProfileUpdate
	in := map[string]string{"full_name": fullName}
	if err := c.doJSON(ctx, creds, http.MethodPatch, "/profile/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadProfilePhoto replaces the caller's profile photo with the contents of
// photo, sent as the multipart field profile_photo.
func (c *Client) UploadProfilePhoto(ctx context.Context, creds Credentials, filename string, photo io.Reader) (*models.PhotoResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("profile_photo", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return nil, fmt.Errorf("copying photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	resp, err := c.send(ctx, creds, http.MethodPatch, "/profile-photo/", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.PhotoResult
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decoding photo result: %w", err)
	}
	return &out, nil
}

// Wallets lists the caller's wallets.
func (c *Client) Wallets(ctx context.Context, creds Credentials) ([]models.Wallet, error) {
	var out []models.Wallet
	if err := c.doJSON(ctx, creds, http.MethodGet, "/wallets/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWallet opens a wallet in currency.
func (c *Client) CreateWallet(ctx context.Context, creds Credentials, currency string) (*models.Wallet, error) {
	var out models.Wallet
	in := map[string]string{"currency": currency}
	if err := c.doJSON(ctx, creds, http.MethodPost, "/wallets/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWallet removes the wallet with the given id.
func (c *Client) DeleteWallet(ctx context.Context, creds Credentials, id int64) error {
	return c.doJSON(ctx, creds, http.MethodDelete, "/wallets/"+strconv.FormatInt(id, 10)+"/", nil, nil, nil)
}

// TopUp credits amount to the caller's wallet in currency.
func (c *Client) TopUp(ctx context.Context, creds Credentials, currency string, amount decimal.Decimal) (*models.TopUpResult, error) {
	var out models.TopUpResult
	in := map[string]any{"currency": currency, "amount": amount}
	if err := c.doJSON(ctx, creds, http.MethodPost, "/wallets/topup/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMoney transfers funds to another user.
func (c *Client) SendMoney(ctx context.Context, creds Credentials, req models.SendMoneyRequest) (*models.SendResult, error) {
	var out models.SendResult
	if err := c.doJSON(ctx, creds, http.MethodPost, "/send-money/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Convert quotes amount of from in to. Nothing is moved.
func (c *Client) Convert(ctx context.Context, creds Credentials, from, to string, amount decimal.Decimal) (*models.ConvertResult, error) {
	var out models.ConvertResult
	in := map[string]any{"from_currency": from, "to_currency": to, "amount": amount}
	if err := c.doJSON(ctx, creds, http.MethodPost, "/convert/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Currencies lists the active currencies.
func (c *Client) Currencies(ctx context.Context, creds Credentials) ([]models.Currency, error) {
	var out []models.Currency
	if err := c.doJSON(ctx, creds, http.MethodGet, "/currencies/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Favorites lists the caller's favorite currency codes.
func (c *Client) Favorites(ctx context.Context, creds Credentials) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, creds, http.MethodGet, "/favorites/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddFavorite marks code as a favorite.
func (c *Client) AddFavorite(ctx context.Context, creds Credentials, code string) error {
	in := map[string]string{"currency_code": code}
	return c.doJSON(ctx, creds, http.MethodPost, "/favorites/", nil, in, nil)
}

// RemoveFavorite unmarks code. The code travels in the request body.
func (c *Client) RemoveFavorite(ctx context.Context, creds Credentials, code string) error {
	in := map[string]string{"currency_code": code}
	return c.doJSON(ctx, creds, http.MethodDelete, "/favorites/", nil, in, nil)
}

// TransactionFilter narrows a transaction listing. Empty fields are not sent.
type TransactionFilter struct {
	Search    string
	Type      string
	Currency  string
	StartDate string
	EndDate   string
	Limit     int
}

// Query encodes the filter as URL query parameters.
func (f TransactionFilter) Query() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("search", f.Search)
	set("type", f.Type)
	set("currency", f.Currency)
	set("start_date", f.StartDate)
	set("end_date", f.EndDate)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Transactions lists the caller's transactions, newest first.
func (c *Client) Transactions(ctx context.Context, creds Credentials, f TransactionFilter) ([]models.Transaction, error) {
	var out []models.Transaction
	if err := c.doJSON(ctx, creds, http.MethodGet, "/transactions/", f.Query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportTransactions streams the caller's transactions as CSV. The caller
// must close the returned reader.
func (c *Client) ExportTransactions(ctx context.Context, creds Credentials, f TransactionFilter) (io.ReadCloser, error) {
	resp, err := c.send(ctx, creds, http.MethodGet, "/transactions/export/", f.Query(), nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Analytics summarises the caller's transfer activity.
func (c *Client) Analytics(ctx context.Context, creds Credentials) (*models.Analytics, error) {
	var out models.Analytics
	if err := c.doJSON(ctx, creds, http.MethodGet, "/analytics/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminStats returns platform-wide aggregates. Staff only.
func (c *Client) AdminStats(ctx context.Context, creds Credentials) (*models.AdminStats, error) {
	var out models.AdminStats
	if err := c.doJSON(ctx, creds, http.MethodGet, "/admin-ui/stats/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers lists every account. Staff only.
func (c *Client) AdminUsers(ctx context.Context, creds Credentials) ([]models.User, error) {
	var out []models.User
	if err := c.doJSON(ctx, creds, http.MethodGet, "/admin-ui/users/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleUserStatus enables or disables the account with the given id.
func (c *Client) ToggleUserStatus(ctx context.Context, creds Credentials, id int64) (*models.ToggleResult, error) {
	var out models.ToggleResult
	path := "/admin-ui/users/" + strconv.FormatInt(id, 10) + "/toggle-status/"
	if err := c.doJSON(ctx, creds, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminTransactions lists every transaction. Staff only.
func (c *Client) AdminTransactions(ctx context.Context, creds Credentials) ([]models.Transaction, error) {
	var out []models.Transaction
	if err := c.doJSON(ctx, creds, http.MethodGet, "/admin-ui/transactions/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminCurrencies lists every currency including inactive ones. Staff only.
func (c *Client) AdminCurrencies(ctx context.Context, creds Credentials) ([]models.Currency, error) {
	var out []models.Currency
	if err := c.doJSON(ctx, creds, http.MethodGet, "/admin-ui/currencies/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
