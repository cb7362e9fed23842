package storage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

func goal(target int64, created time.Time) *core.Goal {
	due := created.AddDate(0, 6, 0)
	return &core.Goal{
		ID:          uuid.New(),
		Description: "viagem",
		Target:      core.Money{Cents: target},
		CreatedAt:   created,
		TargetDate:  &due,
	}
}

func owner(g *core.Goal, user uuid.UUID) core.GoalMember {
	return core.GoalMember{GoalID: g.ID, UserID: user, JoinedAt: g.CreatedAt}
}

func deposit(g *core.Goal, user uuid.UUID, cents int64, date time.Time) *core.Deposit {
	return &core.Deposit{
		ID:        uuid.New(),
		GoalID:    g.ID,
		UserID:    user,
		Amount:    core.Money{Cents: cents},
		Date:      date,
		Source:    "salário",
		CreatedAt: date,
	}
}

func TestGoalLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	g := goal(500000, baseDate)
	if err := repo.CreateGoal(ctx, g, owner(g, alice)); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Target.Cents != 500000 || got.Current.Cents != 0 || got.TargetDate == nil || !got.TargetDate.Equal(*g.TargetDate) {
		t.Fatalf("goal round trip = %+v", got)
	}

	updated, err := repo.AddDeposit(ctx, deposit(g, alice, 12000, baseDate))
	if err != nil {
		t.Fatal(err)
	}
	if updated.Current.Cents != 12000 {
		t.Fatalf("current after first deposit = %d", updated.Current.Cents)
	}
	updated, err = repo.AddDeposit(ctx, deposit(g, alice, 3050, baseDate.AddDate(0, 0, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if updated.Current.Cents != 15050 {
		t.Fatalf("current after second deposit = %d", updated.Current.Cents)
	}

	ds, err := repo.ListDeposits(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 || ds[0].Amount.Cents != 3050 || ds[1].Amount.Cents != 12000 {
		t.Fatalf("deposits should be latest first: %+v", ds)
	}

	pledge := core.Money{Cents: 4000}
	if err := repo.AddGoalMember(ctx, core.GoalMember{GoalID: g.ID, UserID: bob, CustomMonthlyTarget: &pledge, JoinedAt: baseDate.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	err = repo.AddGoalMember(ctx, core.GoalMember{GoalID: g.ID, UserID: bob, JoinedAt: baseDate})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second membership expected conflict, got %v", err)
	}

	ms, err := repo.ListGoalMembers(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].UserID != alice || ms[1].UserID != bob || ms[1].CustomMonthlyTarget.Cents != 4000 {
		t.Fatalf("members = %+v", ms)
	}

	m := ms[1]
	m.CustomMonthlyTarget = nil
	if err := repo.UpdateGoalMember(ctx, m); err != nil {
		t.Fatal(err)
	}
	if m, err = repo.GetGoalMember(ctx, g.ID, bob); err != nil || m.CustomMonthlyTarget != nil {
		t.Fatalf("cleared pledge = %+v, %v", m, err)
	}

	for _, user := range []uuid.UUID{alice, bob} {
		goals, err := repo.ListGoals(ctx, user)
		if err != nil || len(goals) != 1 || goals[0].ID != g.ID {
			t.Fatalf("ListGoals(%s) = %+v, %v", user, goals, err)
		}
	}
	if goals, _ := repo.ListGoals(ctx, uuid.New()); len(goals) != 0 {
		t.Fatalf("stranger sees goals: %+v", goals)
	}
}

func TestGoalMissingRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	missing := goal(100, baseDate)

	if _, err := repo.GetGoal(ctx, missing.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetGoal: expected not found, got %v", err)
	}
	if _, err := repo.AddDeposit(ctx, deposit(missing, uuid.New(), 100, baseDate)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddDeposit: expected not found, got %v", err)
	}
	if err := repo.AddGoalMember(ctx, owner(missing, uuid.New())); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddGoalMember: expected not found, got %v", err)
	}
	if _, err := repo.GetGoalMember(ctx, missing.ID, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetGoalMember: expected not found, got %v", err)
	}
	if err := repo.UpdateGoalMember(ctx, owner(missing, uuid.New())); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateGoalMember: expected not found, got %v", err)
	}
}

func TestAddDepositOverflow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := uuid.New()

	g := goal(100, baseDate)
	g.Current = core.Money{Cents: math.MaxInt64 - 5}
	if err := repo.CreateGoal(ctx, g, owner(g, user)); err != nil {
		t.Fatal(err)
	}

	_, err := repo.AddDeposit(ctx, deposit(g, user, 6, baseDate))
	if !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if ds, _ := repo.ListDeposits(ctx, g.ID); len(ds) != 0 {
		t.Fatalf("refused deposit was stored: %+v", ds)
	}
	if got, _ := repo.GetGoal(ctx, g.ID); got.Current.Cents != math.MaxInt64-5 {
		t.Fatalf("current changed to %d", got.Current.Cents)
	}
}
