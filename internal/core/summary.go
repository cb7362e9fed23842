package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Breakdown is an ordered list of per-key sums. It encodes as a JSON object
// whose keys keep the breakdown's order.
type Breakdown []CategoryAmount

// SeededBreakdown returns a breakdown holding every key at zero.
func SeededBreakdown(keys []string) Breakdown {
	b := make(Breakdown, 0, len(keys))
	for _, k := range keys {
		b = append(b, CategoryAmount{Name: k})
	}
	return b
}

// ExpenseTypeBreakdown is seeded over the canonical expense buckets.
func ExpenseTypeBreakdown() Breakdown {
	types := ExpenseTypes()
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = t.Key()
	}
	return SeededBreakdown(keys)
}

// Add accumulates m under name, appending the key if it is new.
func (b Breakdown) Add(name string, m Money) Breakdown {
	for i := range b {
		if b[i].Name == name {
			b[i].Amount = b[i].Amount.Add(m)
			return b
		}
	}
	return append(b, CategoryAmount{Name: name, Amount: m})
}

// Get returns the amount for name, zero when absent.
func (b Breakdown) Get(name string) Money {
	for _, ca := range b {
		if ca.Name == name {
			return ca.Amount
		}
	}
	return Money{}
}

func (b Breakdown) Keys() []string {
	keys := make([]string, len(b))
	for i, ca := range b {
		keys[i] = ca.Name
	}
	return keys
}

func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ca := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ca.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(ca.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AggregateRow is one group of a store-side GROUP BY over a user's
// transactions: type, category and expense type with their sum and count.
type AggregateRow struct {
	Type        TransactionType
	Category    string
	ExpenseType ExpenseType
	Total       Money
	Count       int
}

// Totals is the compact income/expense summary embedded in listings.
type Totals struct {
	TotalIncome  Money   `json:"totalIncome"`
	TotalExpense Money   `json:"totalExpense"`
	Balance      Money   `json:"balance"`
	SavingsRate  float64 `json:"savingsRate"`
}

// NewTotals derives balance and the guarded savings rate.
func NewTotals(income, expense Money) Totals {
	balance := income.Sub(expense)
	return Totals{
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      balance,
		SavingsRate:  SavingsRate(balance, income),
	}
}

// SavingsRate is balance/income, or 0 when there is no income.
func SavingsRate(balance, income Money) float64 {
	if income.Cents <= 0 {
		return 0
	}
	return float64(balance.Cents) / float64(income.Cents)
}

type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// TotalPages is ceil(items/limit). limit must be positive.
func TotalPages(items, limit int) int {
	return (items + limit - 1) / limit
}

type TransactionPage struct {
	Items      []Transaction `json:"transactions"`
	Pagination Pagination    `json:"pagination"`
	Summary    Totals        `json:"summary"`
}

// Period reports the requested range. Unbounded ends are null.
type Period struct {
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

type IncomeSummary struct {
	Total      Money     `json:"total"`
	Count      int       `json:"count"`
	ByCategory Breakdown `json:"byCategory"`
}

type ExpenseSummary struct {
	Total      Money     `json:"total"`
	Count      int       `json:"count"`
	ByCategory Breakdown `json:"byCategory"`
	ByType     Breakdown `json:"byType"`
}

type DetailedSummary struct {
	Period      Period         `json:"period"`
	Income      IncomeSummary  `json:"income"`
	Expense     ExpenseSummary `json:"expense"`
	Balance     Money          `json:"balance"`
	SavingsRate float64        `json:"savingsRate"`
}
