package core

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// entryRules mirrors the mutable fields of a Transaction for tag validation.
type entryRules struct {
	Value       int64  `json:"value" validate:"gt=0,lte=100000000000"`
	Description string `json:"description" validate:"required,max=500"`
	Category    string `json:"category" validate:"required,max=100"`
}

// ValidateStruct runs tag validation on v and reports the first failing
// field as a validation error.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Validation("", err.Error())
	}
	fe := verrs[0]
	return Validation(fe.Field(), reasonFor(fe))
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		if fe.Param() == "0" {
			return "must be greater than zero"
		}
		return "must be greater than " + fe.Param()
	case "lte":
		if fe.Param() == strconv.FormatInt(MaxEntryCents, 10) {
			return "must be at most " + Money{Cents: MaxEntryCents}.String()
		}
		return "must be at most " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid (" + fe.Tag() + ")"
}

// ValidateEntry checks the fields that Update may change: value, description,
// category and date. Values are capped at MaxEntryCents, years stay within
// 0001-9999 and expenses may not be dated after today (UTC).
func ValidateEntry(typ TransactionType, value Money, description, category string, date time.Time, now time.Time) error {
	rules := entryRules{
		Value:       value.Cents,
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
	}
	if err := ValidateStruct(rules); err != nil {
		return err
	}
	if date.IsZero() {
		return Validation("date", "is required")
	}
	if err := checkYear("date", date); err != nil {
		return err
	}
	if typ == Expense && !date.Before(StartOfDay(now).AddDate(0, 0, 1)) {
		return Validation("date", "expenses cannot be dated in the future")
	}
	return nil
}

// checkYear keeps dates within four-digit years; stores order dates as
// fixed-width text.
func checkYear(field string, t time.Time) error {
	if y := t.UTC().Year(); y < 1 || y > 9999 {
		return Validation(field, "year must be between 0001 and 9999")
	}
	return nil
}

// ValidateTransaction checks every creation invariant of t.
func ValidateTransaction(t Transaction, now time.Time) error {
	if !t.Type.IsValid() {
		return Validation("type", "must be one of income, expense")
	}
	if err := ValidateEntry(t.Type, t.Value, t.Description, t.Category, t.Date, now); err != nil {
		return err
	}
	switch t.Type {
	case Expense:
		if t.ExpenseType == "" {
			return Validation("expenseType", "is required for expenses")
		}
		if !t.ExpenseType.IsValid() {
			return Validation("expenseType", "must be one of Fixas, Variaveis, Desnecessarios")
		}
	case Income:
		if t.ExpenseType != "" {
			return Validation("expenseType", "must be empty for income")
		}
	}
	return nil
}

// ValidateUpload checks size and content type of a receipt file.
func ValidateUpload(size int64, mimeType string) error {
	if size <= 0 {
		return Validation("file", "is empty")
	}
	if size > MaxReceiptSize {
		return Validation("file", "exceeds the 10MB limit")
	}
	if !IsAllowedReceiptMimeType(mimeType) {
		return Validation("mimeType", "must be one of "+strings.Join(AllowedReceiptMimeTypes(), ", "))
	}
	return nil
}
