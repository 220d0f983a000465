package apitest

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"wallet-web/internal/models"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Server) routes() {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+Prefix+path+"{$}", h)
	}

	route("POST /login/", s.locked(s.login))
	route("POST /signup/", s.locked(s.signup))

	route("GET /profile/", s.authed(s.profile))
	route("PATCH /profile/", s.authed(s.updateProfile))
	route("PATCH /profile-photo/", s.authed(s.uploadPhoto))

	route("GET /wallets/", s.authed(s.listWallets))
	route("POST /wallets/", s.authed(s.createWallet))
	route("DELETE /wallets/{id}/", s.authed(s.deleteWallet))
	route("POST /wallets/topup/", s.authed(s.topUp))

	route("POST /send-money/", s.authed(s.sendMoney))
	route("POST /convert/", s.authed(s.convert))
	route("GET /currencies/", s.authed(s.listCurrencies))

	route("GET /favorites/", s.authed(s.listFavorites))
	route("POST /favorites/", s.authed(s.addFavorite))
	route("DELETE /favorites/", s.authed(s.removeFavorite))

	route("GET /transactions/", s.authed(s.listTransactions))
	route("GET /transactions/export/", s.authed(s.exportTransactions))
	route("GET /analytics/", s.authed(s.analytics))

	route("GET /admin-ui/stats/", s.staff(s.adminStats))
	route("GET /admin-ui/users/", s.staff(s.adminUsers))
	route("POST /admin-ui/users/{id}/toggle-status/", s.staff(s.toggleStatus))
	route("GET /admin-ui/transactions/", s.staff(s.adminTransactions))
	route("GET /admin-ui/currencies/", s.staff(s.adminCurrencies))

	s.mux = mux
}

func (s *Server) locked(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	}
}

func (s *Server) authed(h handlerFunc) http.HandlerFunc {
	return s.locked(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
			})
			return
		}
		h(w, r, u)
	})
}

func (s *Server) staff(h handlerFunc) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *user) {
		if !u.isStaff {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"detail": "You do not have permission to perform this action.",
			})
			return
		}
		h(w, r, u)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if missing := requiredFields(map[string]string{"email": in.Email, "password": in.Password}); missing != nil {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}

	u := s.users[in.Email]
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(in.Password)) != nil {
		writeError(w, http.StatusBadRequest, "non_field_errors", "Invalid email or password")
		return
	}
	if !u.isActive {
		writeError(w, http.StatusBadRequest, "non_field_errors", "User account is disabled")
		return
	}

	access, refresh, err := s.issuePair(u.email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Access: access, Refresh: refresh, User: u.model()})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if missing := requiredFields(map[string]string{
		"email": in.Email, "full_name": in.FullName, "password": in.Password,
	}); missing != nil {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}
	if !strings.Contains(in.Email, "@") {
		writeError(w, http.StatusBadRequest, "email", "Enter a valid email address.")
		return
	}
	if _, taken := s.users[in.Email]; taken {
		writeError(w, http.StatusBadRequest, "email", "Email already registered")
		return
	}
	if len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password", "Ensure this field has at least 6 characters.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error", err.Error())
		return
	}
	s.addUserLocked(in.Email, in.FullName, hash, false)

	access, refresh, err := s.issuePair(in.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, models.AuthResponse{
		Message: "Signup successful",
		Access:  access,
		Refresh: refresh,
		User:    s.users[in.Email].model(),
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, u.model())
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		FullName *string `json:"full_name"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if in.FullName != nil {
		if strings.TrimSpace(*in.FullName) == "" {
			writeError(w, http.StatusBadRequest, "full_name", "This field may not be blank.")
			return
		}
		u.fullName = *in.FullName
	}
	writeJSON(w, http.StatusOK, models.ProfileUpdate{Message: "Profile updated", User: u.model()})
}

func (s *Server) uploadPhoto(w http.ResponseWriter, r *http.Request, u *user) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "profile_photo", "No file was submitted.")
		return
	}
	file, header, err := r.FormFile("profile_photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "profile_photo", "No file was submitted.")
		return
	}
	file.Close()

	u.photo = "http://" + r.Host + "/media/profile_photos/" + header.Filename
	writeJSON(w, http.StatusOK, models.PhotoResult{Message: "Profile photo updated", ProfilePhoto: u.photo})
}

func (s *Server) listWallets(w http.ResponseWriter, r *http.Request, u *user) {
	out := []models.Wallet{}
	for _, wl := range s.wallets {
		if wl.owner == u.email {
			out = append(out, wl.model())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		Currency string `json:"currency"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(in.Currency))
	if code == "" {
		writeError(w, http.StatusBadRequest, "error", "Currency is required")
		return
	}
	if s.walletLocked(u.email, code) != nil {
		writeError(w, http.StatusBadRequest, "error", "Wallet already exists")
		return
	}
	s.addWalletLocked(u.email, code, decimal.Zero)
	writeJSON(w, http.StatusCreated, s.wallets[len(s.wallets)-1].model())
}

func (s *Server) deleteWallet(w http.ResponseWriter, r *http.Request, u *user) {
	id, _ := parseID(r.PathValue("id"))
	idx := slices.IndexFunc(s.wallets, func(wl *wallet) bool {
		return wl.id == id && wl.owner == u.email
	})
	if idx < 0 {
		writeError(w, http.StatusNotFound, "error", "Wallet not found")
		return
	}
	if s.wallets[idx].balance.IsPositive() {
		writeError(w, http.StatusBadRequest, "error", "Cannot delete wallet with balance")
		return
	}
	s.wallets = slices.Delete(s.wallets, idx, idx+1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Wallet deleted"})
}

func (s *Server) topUp(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		Currency string           `json:"currency"`
		Amount   *decimal.Decimal `json:"amount"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if in.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount", "This field is required.")
		return
	}
	if !in.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount", "Amount must be greater than zero")
		return
	}
	code := strings.ToUpper(in.Currency)
	wl := s.walletLocked(u.email, code)
	if wl == nil {
		writeError(w, http.StatusBadRequest, "error", "Wallet not found")
		return
	}
	wl.balance = wl.balance.Add(in.Amount.Round(2))
	writeJSON(w, http.StatusOK, models.TopUpResult{
		Message:     "Wallet topped up successfully",
		Currency:    code,
		AddedAmount: in.Amount.Round(2),
		NewBalance:  wl.balance,
	})
}

func (s *Server) sendMoney(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		ReceiverEmail string           `json:"receiver_email"`
		FromCurrency  string           `json:"from_currency"`
		ToCurrency    string           `json:"to_currency"`
		Amount        *decimal.Decimal `json:"amount"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if missing := requiredFields(map[string]string{
		"receiver_email": in.ReceiverEmail, "from_currency": in.FromCurrency, "to_currency": in.ToCurrency,
	}); missing != nil {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}
	if in.Amount == nil || !in.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount", "Ensure this value is greater than 0.")
		return
	}

	from, okFrom := s.currencyLocked(strings.ToUpper(in.FromCurrency))
	to, okTo := s.currencyLocked(strings.ToUpper(in.ToCurrency))
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "error", "Invalid currency code")
		return
	}

	senderWallet := s.walletLocked(u.email, from.code)
	if senderWallet == nil {
		writeError(w, http.StatusBadRequest, "error", "Sender wallet not found")
		return
	}
	receiverWallet := s.walletLocked(in.ReceiverEmail, to.code)
	if receiverWallet == nil {
		writeError(w, http.StatusBadRequest, "error", "Receiver wallet not found")
		return
	}

	amount := in.Amount.Round(2)
	if senderWallet.balance.LessThan(amount) {
		writeError(w, http.StatusBadRequest, "error", "Insufficient balance")
		return
	}

	received := convert(amount, from, to)
	senderWallet.balance = senderWallet.balance.Sub(amount)
	receiverWallet.balance = receiverWallet.balance.Add(received)

	s.nextID++
	s.transfers = append(s.transfers, &transfer{
		id:             s.nextID,
		sender:         u.email,
		receiver:       in.ReceiverEmail,
		amountSent:     amount,
		fromCurrency:   from.code,
		amountReceived: received,
		toCurrency:     to.code,
		createdAt:      time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, models.SendResult{
		Message:  "Money sent successfully",
		Sent:     amount,
		Received: received,
		To:       in.ReceiverEmail,
	})
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		FromCurrency string           `json:"from_currency"`
		ToCurrency   string           `json:"to_currency"`
		Amount       *decimal.Decimal `json:"amount"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	if in.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount", "This field is required.")
		return
	}
	from, okFrom := s.currencyLocked(strings.ToUpper(in.FromCurrency))
	to, okTo := s.currencyLocked(strings.ToUpper(in.ToCurrency))
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "error", "Invalid currency code")
		return
	}
	writeJSON(w, http.StatusOK, models.ConvertResult{
		FromCurrency:    from.code,
		ToCurrency:      to.code,
		OriginalAmount:  *in.Amount,
		ConvertedAmount: convert(*in.Amount, from, to),
	})
}

func (s *Server) listCurrencies(w http.ResponseWriter, r *http.Request, u *user) {
	out := []models.Currency{}
	for _, c := range s.currencies {
		if c.active {
			out = append(out, c.model())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request, u *user) {
	out := s.favorites[u.email]
	if out == nil {
		out = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request, u *user) {
	code, ok := readCurrencyCode(w, r)
	if !ok {
		return
	}
	if slices.Contains(s.favorites[u.email], code) {
		writeError(w, http.StatusBadRequest, "error", "Already favorite")
		return
	}
	s.favorites[u.email] = append(s.favorites[u.email], code)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Added to favorites"})
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request, u *user) {
	code, ok := readCurrencyCode(w, r)
	if !ok {
		return
	}
	s.favorites[u.email] = slices.DeleteFunc(s.favorites[u.email], func(c string) bool { return c == code })
	writeJSON(w, http.StatusOK, map[string]string{"message": "Removed from favorites"})
}

func readCurrencyCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var in struct {
		CurrencyCode string `json:"currency_code"`
	}
	if !readJSON(w, r, &in) {
		return "", false
	}
	if in.CurrencyCode == "" {
		writeError(w, http.StatusBadRequest, "error", "Currency code required")
		return "", false
	}
	return strings.ToUpper(in.CurrencyCode), true
}

// userTransfers returns the transfers email took part in, newest first,
// narrowed by the query filters.
func (s *Server) userTransfers(email string, q map[string][]string) []*transfer {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	search := strings.ToLower(get("search"))
	code := get("currency")
	kind := get("type")
	start, hasStart := parseDate(get("start_date"))
	end, hasEnd := parseDate(get("end_date"))
	limit, _ := strconv.Atoi(get("limit"))

	var out []*transfer
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if t.sender != email && t.receiver != email {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.sender), search) &&
			!strings.Contains(strings.ToLower(t.receiver), search) &&
			!strings.Contains(strings.ToLower(t.fromCurrency), search) &&
			!strings.Contains(strings.ToLower(t.toCurrency), search) {
			continue
		}
		if code != "" && t.fromCurrency != code && t.toCurrency != code {
			continue
		}
		if kind == models.TransactionSent && t.sender != email {
			continue
		}
		if kind == models.TransactionReceived && t.receiver != email {
			continue
		}
		if hasStart && t.createdAt.Before(start) {
			continue
		}
		if hasEnd && !t.createdAt.Before(end.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request, u *user) {
	out := []models.Transaction{}
	for _, t := range s.userTransfers(u.email, r.URL.Query()) {
		out = append(out, t.model(u.email))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) exportTransactions(w http.ResponseWriter, r *http.Request, u *user) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Date", "Type", "Amount Sent", "Currency Sent", "Amount Received", "Currency Received", "From/To"})
	for _, t := range s.userTransfers(u.email, r.URL.Query()) {
		row := []string{t.createdAt.Format(time.DateTime), "Received", "", "", t.amountReceived.StringFixed(2), t.toCurrency, t.sender}
		if t.sender == u.email {
			row = []string{t.createdAt.Format(time.DateTime), "Sent", t.amountSent.StringFixed(2), t.fromCurrency, "", "", t.receiver}
		}
		_ = cw.Write(row)
	}
	cw.Flush()
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request, u *user) {
	var out models.Analytics
	for _, t := range s.transfers {
		if t.sender == u.email {
			out.TotalSent = out.TotalSent.Add(t.amountSent)
		}
		if t.receiver == u.email {
			out.TotalReceived = out.TotalReceived.Add(t.amountReceived)
		}
		if t.sender == u.email || t.receiver == u.email {
			out.TransactionCount++
		}
	}
	out.NetBalanceChange = out.TotalReceived.Sub(out.TotalSent)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request, u *user) {
	out := models.AdminStats{
		TotalUsers:        len(s.users),
		TotalTransactions: len(s.transfers),
		WalletsSummary:    []models.WalletSummary{},
	}
	for _, t := range s.transfers {
		out.TotalVolume = out.TotalVolume.Add(t.amountSent)
	}
	out.TotalVolume = out.TotalVolume.Round(2)

	byCurrency := map[string]*models.WalletSummary{}
	for _, wl := range s.wallets {
		sum := byCurrency[wl.currency]
		if sum == nil {
			sum = &models.WalletSummary{Currency: wl.currency}
			byCurrency[wl.currency] = sum
		}
		sum.TotalBalance = sum.TotalBalance.Add(wl.balance)
		sum.Count++
	}
	for _, sum := range byCurrency {
		out.WalletsSummary = append(out.WalletsSummary, *sum)
	}
	sort.Slice(out.WalletsSummary, func(i, j int) bool {
		return out.WalletsSummary[i].Currency < out.WalletsSummary[j].Currency
	})

	for _, c := range s.currencies {
		if c.active {
			out.ActiveCurrencies++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request, u *user) {
	users := make([]*user, 0, len(s.users))
	for _, each := range s.users {
		users = append(users, each)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].id > users[j].id })

	out := make([]models.User, 0, len(users))
	for _, each := range users {
		out = append(out, each.model())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) toggleStatus(w http.ResponseWriter, r *http.Request, u *user) {
	id, _ := parseID(r.PathValue("id"))
	target := s.userByIDLocked(id)
	if target == nil {
		writeError(w, http.StatusNotFound, "error", "User not found")
		return
	}
	if target == u {
		writeError(w, http.StatusBadRequest, "error", "Cannot disable yourself")
		return
	}
	target.isActive = !target.isActive
	state := "disabled"
	if target.isActive {
		state = "enabled"
	}
	writeJSON(w, http.StatusOK, models.ToggleResult{
		Message:  "User " + state + " successfully",
		IsActive: target.isActive,
	})
}

func (s *Server) adminTransactions(w http.ResponseWriter, r *http.Request, u *user) {
	out := make([]models.Transaction, 0, len(s.transfers))
	for i := len(s.transfers) - 1; i >= 0; i-- {
		out = append(out, s.transfers[i].model(u.email))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminCurrencies(w http.ResponseWriter, r *http.Request, u *user) {
	out := make([]models.Currency, 0, len(s.currencies))
	for _, c := range s.currencies {
		out = append(out, c.model())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, out)
}

func (u *user) model() models.User {
	return models.User{
		ID:              u.id,
		Email:           u.email,
		FullName:        u.fullName,
		ProfilePhotoURL: u.photo,
		IsStaff:         u.isStaff,
		IsSuperuser:     u.isSuperuser,
		IsActive:        u.isActive,
		CreatedAt:       u.createdAt,
	}
}

func (wl *wallet) model() models.Wallet {
	return models.Wallet{ID: wl.id, Currency: wl.currency, Balance: wl.balance, CreatedAt: wl.createdAt}
}

func (c currency) model() models.Currency {
	return models.Currency{Code: c.code, Name: c.name, RateToBase: c.rate}
}

// model renders t from viewer's side.
func (t *transfer) model(viewer string) models.Transaction {
	kind := models.TransactionReceived
	if t.sender == viewer {
		kind = models.TransactionSent
	}
	return models.Transaction{
		ID:             t.id,
		CreatedAt:      t.createdAt,
		SenderEmail:    t.sender,
		ReceiverEmail:  t.receiver,
		AmountSent:     t.amountSent,
		FromCurrency:   t.fromCurrency,
		AmountReceived: t.amountReceived,
		ToCurrency:     t.toCurrency,
		Type:           kind,
	}
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, raw)
	return t, err == nil
}

// requiredFields returns a field error body for every empty value, or nil.
func requiredFields(fields map[string]string) map[string][]string {
	var out map[string][]string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			if out == nil {
				out = map[string][]string{}
			}
			out[name] = []string{"This field is required."}
		}
	}
	return out
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "detail", "JSON parse error")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, field, msg string) {
	if field == "error" || field == "detail" {
		writeJSON(w, status, map[string]string{field: msg})
		return
	}
	writeJSON(w, status, map[string][]string{field: {msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
