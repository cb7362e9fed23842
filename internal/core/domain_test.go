package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func validExpense() Transaction {
	return Transaction{
		Type:        Expense,
		Value:       Money{Cents: 5000},
		Description: "groceries",
		Category:    "Alimentação",
		ExpenseType: Variaveis,
		Date:        testNow.AddDate(0, 0, -1),
	}
}

func TestValidateTransaction(t *testing.T) {
	income := Transaction{
		Type:        Income,
		Value:       Money{Cents: 100000},
		Description: "salary",
		Category:    "Salário",
		Date:        testNow.AddDate(0, 1, 0), // income may be future-dated
	}
	if err := ValidateTransaction(income, testNow); err != nil {
		t.Fatalf("income expected ok, got %v", err)
	}
	if err := ValidateTransaction(validExpense(), testNow); err != nil {
		t.Fatalf("expense expected ok, got %v", err)
	}

	sameDay := validExpense()
	sameDay.Date = time.Date(2025, 3, 15, 23, 59, 0, 0, time.UTC)
	if err := ValidateTransaction(sameDay, testNow); err != nil {
		t.Fatalf("expense dated later today expected ok, got %v", err)
	}

	cases := []struct {
		name  string
		mut   func(*Transaction)
		field string
	}{
		{"zero value", func(tx *Transaction) { tx.Value = Money{} }, "value"},
		{"negative value", func(tx *Transaction) { tx.Value = Money{Cents: -1} }, "value"},
		{"blank description", func(tx *Transaction) { tx.Description = "   " }, "description"},
		{"long description", func(tx *Transaction) { tx.Description = strings.Repeat("a", 501) }, "description"},
		{"blank category", func(tx *Transaction) { tx.Category = "" }, "category"},
		{"long category", func(tx *Transaction) { tx.Category = strings.Repeat("c", 101) }, "category"},
		{"value above cap", func(tx *Transaction) { tx.Value = Money{Cents: MaxEntryCents + 1} }, "value"},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, "date"},
		{"five digit year", func(tx *Transaction) {
			tx.Type, tx.ExpenseType = Income, ""
			tx.Date = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
		}, "date"},
		{"future expense", func(tx *Transaction) { tx.Date = testNow.AddDate(0, 0, 1) }, "date"},
		{"missing expense type", func(tx *Transaction) { tx.ExpenseType = "" }, "expenseType"},
		{"unknown expense type", func(tx *Transaction) { tx.ExpenseType = "luxo" }, "expenseType"},
		{"income with expense type", func(tx *Transaction) { tx.Type = Income }, "expenseType"},
		{"unknown type", func(tx *Transaction) { tx.Type = "transfer" }, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validExpense()
			tc.mut(&tx)
			err := ValidateTransaction(tx, testNow)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := FieldOf(err); got != tc.field {
				t.Fatalf("field = %q, want %q (err=%v)", got, tc.field, err)
			}
		})
	}
}

func TestValidateEntryBounds(t *testing.T) {
	if err := ValidateEntry(Income, Money{Cents: MaxEntryCents}, "bonus", "Outros", testNow, testNow); err != nil {
		t.Fatalf("value at the cap expected ok, got %v", err)
	}
	if err := ValidateEntry(Income, Money{Cents: 1}, "bonus", "Outros", time.Date(9999, 12, 31, 23, 59, 0, 0, time.UTC), testNow); err != nil {
		t.Fatalf("year 9999 expected ok, got %v", err)
	}
	err := ValidateEntry(Income, Money{Cents: MaxEntryCents + 1}, "bonus", "Outros", testNow, testNow)
	if FieldOf(err) != "value" || !strings.Contains(err.Error(), "1000000000.00") {
		t.Fatalf("expected value cap error, got %v", err)
	}
}

func TestValidateEntryCountsCharacters(t *testing.T) {
	// 500 multi-byte runes is still within the limit.
	desc := strings.Repeat("ç", 500)
	if err := ValidateEntry(Income, Money{Cents: 1}, desc, "Outros", testNow, testNow); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateUpload(t *testing.T) {
	cases := []struct {
		name string
		size int64
		mime string
		ok   bool
	}{
		{"empty", 0, "image/jpeg", false},
		{"too large", 11 * 1024 * 1024, "image/jpeg", false},
		{"text", 100, "text/plain", false},
		{"jpeg", 2 * 1024 * 1024, "image/jpeg", true},
		{"upper-case png", 10, "IMAGE/PNG", true},
		{"pdf with params", 10, "application/pdf; charset=binary", true},
		{"exactly 10MB", MaxReceiptSize, "application/pdf", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.size, tc.mime)
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseExpenseType(t *testing.T) {
	for _, in := range []string{"Fixas", "variaveis", " DESNECESSARIOS "} {
		if _, err := ParseExpenseType(in); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
	}
	if _, err := ParseExpenseType("other"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	wrapped := QueryFailed("list transactions", errors.New("disk I/O error"))
	if !errors.Is(wrapped, ErrQuery) {
		t.Fatal("expected ErrQuery")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatal("query error must not match ErrNotFound")
	}
	if KindOf(Conflict("already linked")) != ErrConflict {
		t.Fatal("KindOf conflict")
	}
	if KindOf(errors.New("plain")) != nil {
		t.Fatal("plain errors carry no kind")
	}
}
