package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/models"
	"wallet-web/internal/session"
	"wallet-web/internal/storage"
)

const (
	defaultAPI = "http://localhost:8000/api"
	defaultDB  = "walletctl.db"
	// cliSession is the session row the command line keeps its credentials in.
	cliSession = "cli"
)

var errNotLoggedIn = errors.New("not logged in, run: walletctl login")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: walletctl [flags] <login|logout|whoami|wallets|transactions|export>")
	fs.PrintDefaults()
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("walletctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	apiURL := fs.String("api", defaultAPI, "Wallet API base URL")
	dbPath := fs.String("db", defaultDB, "Path to session database file")
	email := fs.String("email", "", "Email for login (prompted if omitted)")
	passwordFlag := fs.String("password", "", "Password for login (prompted if omitted)")
	txType := fs.String("type", "", "Transaction filter: sent or received")
	currency := fs.String("currency", "", "Transaction filter: currency code")
	search := fs.String("search", "", "Transaction filter: email or currency substring")
	limit := fs.Int("limit", 0, "Maximum transactions to list (0 for all)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		usage(stdout, fs)
		return fmt.Errorf("expected exactly one command")
	}

	// Allow overriding via env vars when the flag was left at its default
	if v := os.Getenv("API_BASE_URL"); v != "" && *apiURL == defaultAPI {
		*apiURL = v
	}
	if v := os.Getenv("DB_PATH"); v != "" && *dbPath == defaultDB {
		*dbPath = v
	}

	db, err := storage.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	s, err := session.Open(db, cliSession, session.DefaultDuration)
	if err != nil {
		return err
	}

	c := &cli{
		client: api.New(*apiURL),
		sess:   s,
		in:     bufio.NewReader(stdin),
		stdin:  stdin,
		out:    newPrinter(stdout),
	}
	ctx := context.Background()
	filter := api.TransactionFilter{Type: *txType, Currency: strings.ToUpper(*currency), Search: *search, Limit: *limit}

	switch cmd := fs.Arg(0); cmd {
	case "login":
		return c.login(ctx, *email, *passwordFlag)
	case "logout":
		return c.logout()
	case "whoami":
		return c.whoami(ctx)
	case "wallets":
		return c.wallets(ctx)
	case "transactions":
		return c.transactions(ctx, filter)
	case "export":
		return c.export(ctx, filter, stdout)
	default:
		usage(stdout, fs)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type cli struct {
	client *api.Client
	sess   *session.Session
	in     *bufio.Reader
	stdin  io.Reader
	out    *printer
}

func (c *cli) login(ctx context.Context, email, password string) error {
	var err error
	if email == "" {
		fmt.Fprint(c.out.w, "Email: ")
		if email, err = readLine(c.in); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}
	if password == "" {
		fmt.Fprint(c.out.w, "Password: ")
		if password, err = c.readPassword(); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(c.out.w) // Print newline after password input
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	res, err := c.client.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return errors.New(api.Message(err, "login failed"))
	}
	if err := c.sess.Clear(); err != nil {
		return err
	}
	if err := c.sess.Save(session.Credentials{Access: res.Access, Refresh: res.Refresh}); err != nil {
		return err
	}

	user := res.User
	if profile, err := c.client.Profile(ctx, c.sess); err == nil {
		user = *profile
	}
	if err := c.sess.SaveUser(user); err != nil {
		return err
	}

	c.out.success("Logged in as %s\n", user.Email)
	return nil
}

func (c *cli) logout() error {
	if err := c.sess.Clear(); err != nil {
		return err
	}
	c.out.success("Logged out\n")
	return nil
}

// authed fails fast when no credentials are stored. A credential the server
// rejects is cleared by the client.
func (c *cli) authed(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return fmt.Errorf("session expired: %w", errNotLoggedIn)
	}
	return err
}

func (c *cli) whoami(ctx context.Context) error {
	if !auth.IsAuthenticated(c.sess) {
		return errNotLoggedIn
	}
	user, err := c.client.Profile(ctx, c.sess)
	if err != nil {
		return c.authed(err)
	}
	if err := c.sess.SaveUser(*user); err != nil {
		return err
	}

	fmt.Fprintf(c.out.w, "%s <%s>", user.FullName, user.Email)
	if auth.IsAdmin(c.sess) {
		c.out.highlight(" [staff]")
	}
	fmt.Fprintln(c.out.w)
	return nil
}

func (c *cli) wallets(ctx context.Context) error {
	if !auth.IsAuthenticated(c.sess) {
		return errNotLoggedIn
	}
	wallets, err := c.client.Wallets(ctx, c.sess)
	if err != nil {
		return c.authed(err)
	}
	if len(wallets) == 0 {
		fmt.Fprintln(c.out.w, "You don't have any wallets yet.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CURRENCY\tBALANCE\tCREATED")
	for _, w := range wallets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", w.Currency, w.Balance.StringFixed(2), w.CreatedAt.Local().Format(time.DateOnly))
	}
	return tw.Flush()
}

func (c *cli) transactions(ctx context.Context, filter api.TransactionFilter) error {
	if !auth.IsAuthenticated(c.sess) {
		return errNotLoggedIn
	}
	txs, err := c.client.Transactions(ctx, c.sess, filter)
	if err != nil {
		return c.authed(err)
	}
	if len(txs) == 0 {
		fmt.Fprintln(c.out.w, "No transactions yet")
		return nil
	}

	tw := tabwriter.NewWriter(c.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tCOUNTERPARTY")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Local().Format("2006-01-02 15:04"), tx.Type, signedAmount(tx), tx.Counterparty())
	}
	return tw.Flush()
}

func signedAmount(tx models.Transaction) string {
	sign := "+"
	if tx.IsSent() {
		sign = "-"
	}
	return sign + tx.Amount().StringFixed(2) + " " + tx.AmountCurrency()
}

func (c *cli) export(ctx context.Context, filter api.TransactionFilter, w io.Writer) error {
	if !auth.IsAuthenticated(c.sess) {
		return errNotLoggedIn
	}
	body, err := c.client.ExportTransactions(ctx, c.sess, filter)
	if err != nil {
		return c.authed(err)
	}
	defer body.Close()
	_, err = io.Copy(w, body)
	return err
}

func (c *cli) readPassword() (string, error) {
	// Check if stdin is a terminal
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}
	// Fallback for non-terminal (e.g. tests, pipes)
	return readLine(c.in)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printer writes to the command's output, in color only on a terminal.
type printer struct {
	w     io.Writer
	plain bool
}

func newPrinter(w io.Writer) *printer {
	f, ok := w.(*os.File)
	return &printer{w: w, plain: !ok || !term.IsTerminal(int(f.Fd()))}
}

func (p *printer) paint(attr color.Attribute, format string, a ...any) {
	c := color.New(attr)
	if p.plain {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	c.Fprintf(p.w, format, a...)
}

func (p *printer) success(format string, a ...any) { p.paint(color.FgGreen, format, a...) }

func (p *printer) highlight(format string, a ...any) { p.paint(color.FgYellow, format, a...) }
