package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-web/internal/apitest"
)

type env struct {
	backend *apitest.Server
	apiURL  string
	dbPath  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	backend := apitest.New()
	backend.AddUser("user@example.com", "Test User", "secret", false)
	backend.AddUser("admin@example.com", "Admin User", "secret", true)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	return &env{
		backend: backend,
		apiURL:  srv.URL + apitest.Prefix,
		dbPath:  filepath.Join(t.TempDir(), "walletctl.db"),
	}
}

func (e *env) run(stdin string, args ...string) (string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	all := append([]string{"-api", e.apiURL, "-db", e.dbPath}, args...)
	err := run(all, bytes.NewBufferString(stdin), stdout, stderr)
	return stdout.String(), err
}

func TestRun_LoginAndWhoami(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("", "-email", "user@example.com", "-password", "secret", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as user@example.com")

	out, err = e.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Test User <user@example.com>")
	assert.NotContains(t, out, "[staff]")
}

func TestRun_InteractiveLogin(t *testing.T) {
	e := newEnv(t)

	// Simulate typing the email and password followed by newlines
	out, err := e.run("admin@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Password: ")

	out, err = e.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "[staff]")
}

func TestRun_LoginRejected(t *testing.T) {
	e := newEnv(t)

	_, err := e.run("", "-email", "user@example.com", "-password", "nope", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")

	_, err = e.run("", "wallets")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRun_Wallets(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "-email", "user@example.com", "-password", "secret", "login")
	require.NoError(t, err)

	out, err := e.run("", "wallets")
	require.NoError(t, err)
	assert.Contains(t, out, "You don't have any wallets yet.")

	e.backend.AddWallet("user@example.com", "EUR", "12.5")
	out, err = e.run("", "wallets")
	require.NoError(t, err)
	assert.Contains(t, out, "CURRENCY")
	assert.Contains(t, out, "EUR")
	assert.Contains(t, out, "12.50")
}

func TestRun_TransactionsAndExport(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "-email", "user@example.com", "-password", "secret", "login")
	require.NoError(t, err)

	out, err := e.run("", "transactions")
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions yet")

	out, err = e.run("", "-type", "sent", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "Date,Type")
}

func TestRun_ExpiredSession(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "-email", "user@example.com", "-password", "secret", "login")
	require.NoError(t, err)

	e.backend.ExpireTokens()
	_, err = e.run("", "wallets")
	require.ErrorIs(t, err, errNotLoggedIn)
	assert.Contains(t, err.Error(), "session expired")

	// The rejected token was cleared, so the next call fails fast
	e.backend.ResetRequests()
	_, err = e.run("", "wallets")
	require.ErrorIs(t, err, errNotLoggedIn)
	assert.Empty(t, e.backend.Requests())
}

func TestRun_Logout(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "-email", "user@example.com", "-password", "secret", "login")
	require.NoError(t, err)

	out, err := e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = e.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRun_Usage(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("")
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")

	out, err = e.run("", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Contains(t, out, "Usage:")
}
