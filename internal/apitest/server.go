// Package apitest is an in-memory stand-in for the remote wallet API. It
// speaks the same JSON as the real service, issues HS256 bearer tokens and
// keeps wallets, transfers and favorites in memory, so handlers, the CLI and
// the browser suite can run without the real backend.
package apitest

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Prefix is the path the API is mounted under.
const Prefix = "/api"

var errInvalidToken = errors.New("invalid token")

type user struct {
	id          int64
	email       string
	fullName    string
	hash        []byte
	photo       string
	isStaff     bool
	isSuperuser bool
	isActive    bool
	createdAt   time.Time
}

type wallet struct {
	id        int64
	owner     string
	currency  string
	balance   decimal.Decimal
	createdAt time.Time
}

type transfer struct {
	id             int64
	sender         string
	receiver       string
	amountSent     decimal.Decimal
	fromCurrency   string
	amountReceived decimal.Decimal
	toCurrency     string
	createdAt      time.Time
}

type currency struct {
	code   string
	name   string
	rate   decimal.Decimal
	active bool
}

type injectedError struct {
	status  int
	message string
}

type claims struct {
	TokenType  string `json:"token_type"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

// Server is the fake API. Create it with New and serve it with
// httptest.NewServer or http.ListenAndServe.
type Server struct {
	mu         sync.Mutex
	secret     []byte
	generation int
	nextID     int64
	users      map[string]*user
	wallets    []*wallet
	transfers  []*transfer
	currencies []currency
	favorites  map[string][]string
	requests   []string
	failures   map[string]injectedError

	mux *http.ServeMux
}

// New returns a Server seeded with a fixed set of currencies.
func New() *Server {
	s := &Server{
		secret:    []byte(uuid.NewString()),
		users:     make(map[string]*user),
		favorites: make(map[string][]string),
		failures:  make(map[string]injectedError),
		currencies: []currency{
			{code: "USD", name: "US Dollar", rate: decimal.NewFromInt(1), active: true},
			{code: "EUR", name: "Euro", rate: decimal.RequireFromString("0.92"), active: true},
			{code: "INR", name: "Indian Rupee", rate: decimal.RequireFromString("83.12"), active: true},
			{code: "GBP", name: "British Pound", rate: decimal.RequireFromString("0.79"), active: true},
			{code: "JPY", name: "Japanese Yen", rate: decimal.RequireFromString("149.50"), active: true},
			{code: "CHF", name: "Swiss Franc", rate: decimal.RequireFromString("0.88"), active: false},
		},
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, Prefix)
	s.mu.Lock()
	s.requests = append(s.requests, key)
	failure, failing := s.failures[key]
	delete(s.failures, key)
	s.mu.Unlock()

	if failing {
		writeError(w, failure.status, "error", failure.message)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// FailNext makes the next request to "METHOD /path" (without the API prefix)
// answer status with {"error": message}.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = injectedError{status: status, message: message}
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, fullName, password string, staff bool) int64 {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hashing password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, fullName, hash, staff)
}

func (s *Server) addUserLocked(email, fullName string, hash []byte, staff bool) int64 {
	s.nextID++
	s.users[email] = &user{
		id:          s.nextID,
		email:       email,
		fullName:    fullName,
		hash:        hash,
		isStaff:     staff,
		isSuperuser: staff,
		isActive:    true,
		createdAt:   time.Now().UTC(),
	}
	return s.nextID
}

// AddWallet opens a wallet for email with the given balance and returns its id.
func (s *Server) AddWallet(email, code, balance string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addWalletLocked(email, code, decimal.RequireFromString(balance))
}

func (s *Server) addWalletLocked(email, code string, balance decimal.Decimal) int64 {
	s.nextID++
	s.wallets = append(s.wallets, &wallet{
		id:        s.nextID,
		owner:     email,
		currency:  code,
		balance:   balance,
		createdAt: time.Now().UTC(),
	})
	return s.nextID
}

// Balance returns the balance of email's wallet in code.
func (s *Server) Balance(email, code string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.walletLocked(email, code); w != nil {
		return w.balance, true
	}
	return decimal.Zero, false
}

// HasWallet reports whether email owns a wallet in code.
func (s *Server) HasWallet(email, code string) bool {
	_, ok := s.Balance(email, code)
	return ok
}

// Favorites returns email's favorite currency codes.
func (s *Server) Favorites(email string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites[email])
}

// UserActive reports whether the account is enabled.
func (s *Server) UserActive(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[email]
	return u != nil && u.isActive
}

// FullName returns the stored display name of email.
func (s *Server) FullName(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[email]; u != nil {
		return u.fullName
	}
	return ""
}

// ExpireTokens invalidates every token issued so far. The next authenticated
// call answers 401.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// Requests returns "METHOD /path" for every request received, without the
// API prefix.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// ResetRequests forgets the recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) issue(email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		TokenType:  tokenType,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Server) issuePair(email string) (access, refresh string, err error) {
	if access, err = s.issue(email, "access", time.Hour); err != nil {
		return "", "", err
	}
	if refresh, err = s.issue(email, "refresh", 24*time.Hour); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// authenticate resolves the bearer token to an active user. Callers hold mu.
func (s *Server) authenticate(r *http.Request) (*user, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errInvalidToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if c.TokenType != "access" || c.Generation != s.generation {
		return nil, errInvalidToken
	}

	u := s.users[c.Subject]
	if u == nil || !u.isActive {
		return nil, errInvalidToken
	}
	return u, nil
}

func (s *Server) walletLocked(email, code string) *wallet {
	for _, w := range s.wallets {
		if w.owner == email && w.currency == code {
			return w
		}
	}
	return nil
}

func (s *Server) currencyLocked(code string) (currency, bool) {
	for _, c := range s.currencies {
		if c.code == code && c.active {
			return c, true
		}
	}
	return currency{}, false
}

func (s *Server) userByIDLocked(id int64) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

// convert applies the base-rate conversion, rounded to two places.
func convert(amount decimal.Decimal, from, to currency) decimal.Decimal {
	return amount.Div(from.rate).Mul(to.rate).Round(2)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}
