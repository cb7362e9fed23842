package core

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSourceLength bounds the free-text origin of a deposit ("salary", "pix").
const MaxSourceLength = 100

type (
	// Goal is a savings target. Current only grows, through deposits.
	Goal struct {
		ID          uuid.UUID  `json:"id"`
		Description string     `json:"description"`
		Target      Money      `json:"targetAmount"`
		Current     Money      `json:"currentAmount"`
		CreatedAt   time.Time  `json:"createdAt"`
		TargetDate  *time.Time `json:"targetDate,omitempty"`
	}

	Deposit struct {
		ID        uuid.UUID `json:"id"`
		GoalID    uuid.UUID `json:"goalId"`
		UserID    uuid.UUID `json:"userId"`
		Amount    Money     `json:"amount"`
		Date      time.Time `json:"date"`
		Source    string    `json:"source"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// GoalMember grants a user access to a shared goal. CustomMonthlyTarget is
	// the member's own pledge and overrides the computed contribution for them.
	GoalMember struct {
		GoalID              uuid.UUID `json:"goalId"`
		UserID              uuid.UUID `json:"userId"`
		CustomMonthlyTarget *Money    `json:"customMonthlyTarget,omitempty"`
		JoinedAt            time.Time `json:"joinedAt"`
	}

	// GoalStatus is a goal with its derived progress figures.
	GoalStatus struct {
		Goal
		Remaining           Money `json:"remainingAmount"`
		RemainingMonths     int   `json:"remainingMonths"`
		MonthlyContribution Money `json:"requiredMonthlyContribution"`
		Reached             bool  `json:"reached"`
	}
)

// RemainingMonths counts calendar months from creation to the target date,
// never less than one. A goal without a target date has one month.
func (g Goal) RemainingMonths() int {
	if g.TargetDate == nil {
		return 1
	}
	from, to := g.CreatedAt.UTC(), g.TargetDate.UTC()
	n := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if n < 1 {
		return 1
	}
	return n
}

// MonthlyContribution spreads the target evenly over RemainingMonths,
// rounding half to even on the cent.
func (g Goal) MonthlyContribution() Money {
	return Money{Cents: divRoundHalfEven(g.Target.Cents, int64(g.RemainingMonths()))}
}

// Remaining is what is still missing to reach the target, floored at zero.
func (g Goal) Remaining() Money {
	if g.Current.Cents >= g.Target.Cents {
		return Money{}
	}
	return g.Target.Sub(g.Current)
}

func (g Goal) Status() GoalStatus {
	return GoalStatus{
		Goal:                g,
		Remaining:           g.Remaining(),
		RemainingMonths:     g.RemainingMonths(),
		MonthlyContribution: g.MonthlyContribution(),
		Reached:             g.Current.Cents >= g.Target.Cents,
	}
}

// CanAdd reports whether amount fits on top of the current amount.
func (g Goal) CanAdd(amount Money) bool {
	return amount.Cents > 0 && g.Current.Cents <= math.MaxInt64-amount.Cents
}

// divRoundHalfEven divides a non-negative a by a positive b.
func divRoundHalfEven(a, b int64) int64 {
	q, r := a/b, a%b
	switch {
	case r > b-r:
		q++
	case r == b-r && q%2 == 1:
		q++
	}
	return q
}

type goalRules struct {
	Description string `json:"description" validate:"required,max=500"`
	Target      int64  `json:"targetAmount" validate:"gt=0,lte=100000000000"`
}

type depositRules struct {
	Amount int64  `json:"amount" validate:"gt=0,lte=100000000000"`
	Source string `json:"source" validate:"required,max=100"`
}

type memberRules struct {
	CustomMonthlyTarget int64 `json:"customMonthlyTarget" validate:"gt=0,lte=100000000000"`
}

// ValidateGoal checks a new goal. The target date, when set, may not fall
// before the day the goal is created.
func ValidateGoal(g Goal) error {
	if err := ValidateStruct(goalRules{
		Description: strings.TrimSpace(g.Description),
		Target:      g.Target.Cents,
	}); err != nil {
		return err
	}
	if g.TargetDate != nil {
		if err := checkYear("targetDate", *g.TargetDate); err != nil {
			return err
		}
		if g.TargetDate.Before(StartOfDay(g.CreatedAt)) {
			return Validation("targetDate", "cannot be in the past")
		}
	}
	return nil
}

// ValidateDeposit checks a deposit against the time it is made. Deposits may
// not be dated after today (UTC).
func ValidateDeposit(d Deposit, now time.Time) error {
	if err := ValidateStruct(depositRules{
		Amount: d.Amount.Cents,
		Source: strings.TrimSpace(d.Source),
	}); err != nil {
		return err
	}
	if d.Date.IsZero() {
		return Validation("date", "is required")
	}
	if err := checkYear("date", d.Date); err != nil {
		return err
	}
	if !d.Date.Before(StartOfDay(now).AddDate(0, 0, 1)) {
		return Validation("date", "deposits cannot be dated in the future")
	}
	return nil
}

// ValidateMonthlyTarget accepts nil, which clears a member's pledge.
func ValidateMonthlyTarget(m *Money) error {
	if m == nil {
		return nil
	}
	return ValidateStruct(memberRules{CustomMonthlyTarget: m.Cents})
}
