package api

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"wallet-web/internal/apitest"
	"wallet-web/internal/models"
	"wallet-web/internal/session"
)

type memCreds struct {
	mu      sync.Mutex
	values  map[string]string
	cleared int
}

func (m *memCreds) Get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *memCreds) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	m.cleared++
	return nil
}

type ClientTestSuite struct {
	suite.Suite
	fake   *apitest.Server
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.fake = apitest.New()
	s.server = httptest.NewServer(s.fake)
	s.client = New(s.server.URL + apitest.Prefix + "/")
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

// login registers email and returns credentials holding its access token.
func (s *ClientTestSuite) login(email string, staff bool) *memCreds {
	s.fake.AddUser(email, "Test User", "secret", staff)
	res, err := s.client.Login(s.ctx, email, "secret")
	s.Require().NoError(err)
	return &memCreds{values: map[string]string{
		session.KeyAccessToken:  res.Access,
		session.KeyRefreshToken: res.Refresh,
	}}
}

func (s *ClientTestSuite) TestLogin() {
	s.fake.AddUser("user@example.com", "Jane Doe", "secret", false)

	res, err := s.client.Login(s.ctx, "user@example.com", "secret")
	s.Require().NoError(err)
	s.NotEmpty(res.Access)
	s.NotEmpty(res.Refresh)
	s.Equal("Jane Doe", res.User.FullName)
	s.False(res.User.IsStaff)
}

func (s *ClientTestSuite) TestLoginWrongPassword() {
	s.fake.AddUser("user@example.com", "Jane Doe", "secret", false)

	_, err := s.client.Login(s.ctx, "user@example.com", "nope")
	var apiErr *Error
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(http.StatusBadRequest, apiErr.Status)
	s.Equal("Invalid email or password", apiErr.Message)
}

func (s *ClientTestSuite) TestSignupFieldErrors() {
	s.fake.AddUser("taken@example.com", "Taken", "secret", false)

	_, err := s.client.Signup(s.ctx, "Someone", "taken@example.com", "secret")
	s.Require().Error(err)
	s.Equal("Email already registered", FieldMessage(err, "email"))
	s.Empty(FieldMessage(err, "full_name"))
}

func (s *ClientTestSuite) TestBearerInjected() {
	creds := s.login("user@example.com", false)

	p, err := s.client.Profile(s.ctx, creds)
	s.Require().NoError(err)
	s.Equal("user@example.com", p.Email)
}

func (s *ClientTestSuite) TestUnauthorizedClearsCredentials() {
	creds := s.login("user@example.com", false)
	s.fake.ExpireTokens()

	_, err := s.client.Wallets(s.ctx, creds)
	s.ErrorIs(err, ErrUnauthorized)
	s.Equal(1, creds.cleared)
	s.Empty(creds.Get(session.KeyAccessToken))
}

func (s *ClientTestSuite) TestForbiddenKeepsCredentials() {
	creds := s.login("user@example.com", false)

	_, err := s.client.AdminStats(s.ctx, creds)
	var apiErr *Error
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(http.StatusForbidden, apiErr.Status)
	s.Zero(creds.cleared)
	s.NotEmpty(creds.Get(session.KeyAccessToken))
}

func (s *ClientTestSuite) TestWalletLifecycle() {
	creds := s.login("user@example.com", false)

	w, err := s.client.CreateWallet(s.ctx, creds, "EUR")
	s.Require().NoError(err)
	s.Equal("EUR", w.Currency)
	s.True(w.Balance.IsZero())

	_, err = s.client.CreateWallet(s.ctx, creds, "EUR")
	s.Equal("Wallet already exists", Message(err, "Failed to create wallet"))

	res, err := s.client.TopUp(s.ctx, creds, "EUR", decimal.RequireFromString("25.50"))
	s.Require().NoError(err)
	s.Equal("Wallet topped up successfully", res.Message)
	s.True(res.NewBalance.Equal(decimal.RequireFromString("25.50")))

	err = s.client.DeleteWallet(s.ctx, creds, w.ID)
	s.Equal("Cannot delete wallet with balance", Message(err, ""))

	wallets, err := s.client.Wallets(s.ctx, creds)
	s.Require().NoError(err)
	s.Len(wallets, 1)
}

func (s *ClientTestSuite) TestSendMoneyAndTransactions() {
	alice := s.login("alice@example.com", false)
	s.fake.AddUser("bob@example.com", "Bob", "secret", false)
	s.fake.AddWallet("alice@example.com", "USD", "100")
	s.fake.AddWallet("bob@example.com", "EUR", "0")

	res, err := s.client.SendMoney(s.ctx, alice, models.SendMoneyRequest{
		ReceiverEmail: "bob@example.com",
		FromCurrency:  "USD",
		ToCurrency:    "EUR",
		Amount:        decimal.NewFromInt(10),
	})
	s.Require().NoError(err)
	s.True(res.Received.Equal(decimal.RequireFromString("9.2")))

	txs, err := s.client.Transactions(s.ctx, alice, TransactionFilter{Type: models.TransactionSent})
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.True(txs[0].IsSent())
	s.Equal("bob@example.com", txs[0].Counterparty())

	txs, err = s.client.Transactions(s.ctx, alice, TransactionFilter{Type: models.TransactionReceived})
	s.Require().NoError(err)
	s.Empty(txs)

	body, err := s.client.ExportTransactions(s.ctx, alice, TransactionFilter{})
	s.Require().NoError(err)
	defer body.Close()
	rows, err := csv.NewReader(body).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("Sent", rows[1][1])
	s.Equal("bob@example.com", rows[1][6])
}

func (s *ClientTestSuite) TestFavorites() {
	creds := s.login("user@example.com", false)

	s.Require().NoError(s.client.AddFavorite(s.ctx, creds, "eur"))
	favs, err := s.client.Favorites(s.ctx, creds)
	s.Require().NoError(err)
	s.Equal([]string{"EUR"}, favs)

	s.Require().NoError(s.client.RemoveFavorite(s.ctx, creds, "EUR"))
	favs, err = s.client.Favorites(s.ctx, creds)
	s.Require().NoError(err)
	s.Empty(favs)
}

func (s *ClientTestSuite) TestConvert() {
	creds := s.login("user@example.com", false)

	res, err := s.client.Convert(s.ctx, creds, "USD", "INR", decimal.NewFromInt(2))
	s.Require().NoError(err)
	s.Equal("INR", res.ToCurrency)
	s.True(res.ConvertedAmount.Equal(decimal.RequireFromString("166.24")))
}

func (s *ClientTestSuite) TestUploadProfilePhoto() {
	creds := s.login("user@example.com", false)

	res, err := s.client.UploadProfilePhoto(s.ctx, creds, "me.png", strings.NewReader("png-bytes"))
	s.Require().NoError(err)
	s.Equal("Profile photo updated", res.Message)
	s.True(strings.HasSuffix(res.ProfilePhoto, "/me.png"))
}

func (s *ClientTestSuite) TestAdminEndpoints() {
	admin := s.login("admin@example.com", true)
	userID := s.fake.AddUser("user@example.com", "User", "secret", false)

	stats, err := s.client.AdminStats(s.ctx, admin)
	s.Require().NoError(err)
	s.Equal(2, stats.TotalUsers)

	users, err := s.client.AdminUsers(s.ctx, admin)
	s.Require().NoError(err)
	s.Len(users, 2)

	res, err := s.client.ToggleUserStatus(s.ctx, admin, userID)
	s.Require().NoError(err)
	s.False(res.IsActive)
	s.Equal("User disabled successfully", res.Message)

	currencies, err := s.client.AdminCurrencies(s.ctx, admin)
	s.Require().NoError(err)
	active, err := s.client.Currencies(s.ctx, admin)
	s.Require().NoError(err)
	s.Greater(len(currencies), len(active))
}

func TestTransactionFilterQuery(t *testing.T) {
	q := TransactionFilter{Search: "bob", Type: "sent", StartDate: "2024-01-01", Limit: 5}.Query()
	assert.Equal(t, "bob", q.Get("search"))
	assert.Equal(t, "sent", q.Get("type"))
	assert.Equal(t, "2024-01-01", q.Get("start_date"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.False(t, q.Has("end_date"))
	assert.False(t, q.Has("currency"))

	assert.Empty(t, TransactionFilter{}.Query())
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "[]")
	}))
	defer srv.Close()

	creds := &memCreds{values: map[string]string{session.KeyAccessToken: "tok"}}
	_, err := New(srv.URL).Wallets(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestNoAuthorizationWithoutToken(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, "[]")
	}))
	defer srv.Close()

	_, err := New(srv.URL).Currencies(context.Background(), &memCreds{values: map[string]string{}})
	require.NoError(t, err)
	assert.Empty(t, got.Get("Authorization"))
}

func TestErrorDecoding(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "error field", status: 400, body: `{"error":"Insufficient balance"}`, message: "Insufficient balance"},
		{name: "detail field", status: 403, body: `{"detail":"Forbidden"}`, message: "Forbidden"},
		{name: "non field errors", status: 400, body: `{"non_field_errors":["Bad"]}`, message: "Bad"},
		{name: "first field by name", status: 400, body: `{"password":["short"],"email":["taken"]}`, message: "taken"},
		{name: "not json", status: 500, body: `<html>oops</html>`, message: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Wallets(context.Background(), &memCreds{})
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, orDefault(tt.message, "fallback"), Message(err, "fallback"))
		})
	}
}

func TestMessageFallbackForTransportErrors(t *testing.T) {
	assert.Equal(t, "Top-up failed", Message(errors.New("dial tcp: refused"), "Top-up failed"))
	assert.Equal(t, "Top-up failed", Message(ErrUnauthorized, "Top-up failed"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
