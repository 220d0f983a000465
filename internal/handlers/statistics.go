package handlers

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-web/internal/models"
)

// SummaryItem is one currency row of the admin wallet summary.
type SummaryItem struct {
	Currency     string
	Count        int
	TotalBalance decimal.Decimal
	Percentage   float64
}

// TransactionItem is a transaction with its display time.
type TransactionItem struct {
	models.Transaction
	Time string
}

// TransactionGroup holds the transactions of one calendar day.
type TransactionGroup struct {
	Date  string
	Title string
	Items []TransactionItem
}

// summarize computes each currency's share of all wallets.
func summarize(rows []models.WalletSummary) []SummaryItem {
	var wallets int
	for _, row := range rows {
		wallets += row.Count
	}

	items := make([]SummaryItem, 0, len(rows))
	for _, row := range rows {
		percentage := 0.0
		if wallets > 0 {
			percentage = float64(row.Count) / float64(wallets) * 100
		}
		items = append(items, SummaryItem{
			Currency:     row.Currency,
			Count:        row.Count,
			TotalBalance: row.TotalBalance,
			Percentage:   percentage,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Count > items[j].Count })
	return items
}

// groupByDay buckets transactions by local calendar day, newest day first.
func groupByDay(txs []models.Transaction, now time.Time) []TransactionGroup {
	groupsMap := make(map[string]*TransactionGroup)
	for _, tx := range txs {
		local := tx.CreatedAt.In(now.Location())
		dateStr := local.Format(time.DateOnly)
		if _, ok := groupsMap[dateStr]; !ok {
			groupsMap[dateStr] = &TransactionGroup{Date: dateStr, Title: formatGroupTitle(local, now)}
		}
		group := groupsMap[dateStr]
		group.Items = append(group.Items, TransactionItem{
			Transaction: tx,
			Time:        local.Format("15:04"),
		})
	}

	groups := make([]TransactionGroup, 0, len(groupsMap))
	for _, g := range groupsMap {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	return groups
}

func formatGroupTitle(date, now time.Time) string {
	dateStr := date.Format(time.DateOnly)
	if dateStr == now.Format(time.DateOnly) {
		return "TODAY"
	}
	if dateStr == now.AddDate(0, 0, -1).Format(time.DateOnly) {
		return "YESTERDAY"
	}
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}
