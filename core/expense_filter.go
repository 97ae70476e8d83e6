package core

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExpenseFilter narrows an already fetched list. Empty fields match everything.
type ExpenseFilter struct {
	Name     string
	Category string
	Date     string
}

// FilterExpenses keeps expenses whose fields contain every non-empty filter, case-insensitively.
func FilterExpenses(list []Expense, f ExpenseFilter) []Expense {
	out := make([]Expense, 0, len(list))
	for _, e := range list {
		if containsFold(e.ExpenseName, f.Name) &&
			containsFold(e.ExpenseCategory, f.Category) &&
			containsFold(e.ExpenseDate, f.Date) {
			out = append(out, e)
		}
	}
	return out
}

func containsFold(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

// FilterByYear keeps expenses dated in year. Undated records never match.
func FilterByYear(list []Expense, year string) []Expense {
	year = strings.TrimSpace(year)
	out := make([]Expense, 0, len(list))
	for _, e := range list {
		t, ok := e.Date()
		if ok && strconv.Itoa(t.Year()) == year {
			out = append(out, e)
		}
	}
	return out
}

// SortByAmount returns a copy ordered by ascending amount; ties keep their order.
func SortByAmount(list []Expense) []Expense {
	out := append([]Expense(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount < out[j].Amount })
	return out
}

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// MonthOverview summarizes the transactions of one month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	Total      float64          `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// Summarize totals list for the month of now; categories are ordered by name.
func Summarize(list []Expense, now time.Time) MonthOverview {
	ov := MonthOverview{Year: now.Year(), Month: int(now.Month())}
	byCat := map[string]float64{}
	for _, e := range list {
		ov.Total += e.Amount
		byCat[e.ExpenseCategory] += e.Amount
	}
	for name, amount := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool { return ov.ByCategory[i].Name < ov.ByCategory[j].Name })
	return ov
}
