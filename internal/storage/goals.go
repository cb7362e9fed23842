package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g *core.Goal, owner core.GoalMember) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.InsertGoal(ctx, *g); err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		if _, err := q.InsertMember(ctx, owner); err != nil {
			return fmt.Errorf("add goal owner: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error) {
	g, err := r.queries.GetGoal(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.NotFound("goal", id)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	goals, err := r.queries.ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func (r *SQLiteRepository) AddDeposit(ctx context.Context, d *core.Deposit) (core.Goal, error) {
	var g core.Goal
	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.RaiseGoal(ctx, d.GoalID, d.Amount)
		if err != nil {
			return fmt.Errorf("raise goal: %w", err)
		}
		if n == 0 {
			if _, err := q.GetGoal(ctx, d.GoalID); errors.Is(err, sql.ErrNoRows) {
				return core.NotFound("goal", d.GoalID)
			}
			return core.InvalidState("goal cannot hold this deposit")
		}
		if err := q.InsertDeposit(ctx, *d); err != nil {
			return fmt.Errorf("create deposit: %w", err)
		}
		if g, err = q.GetGoal(ctx, d.GoalID); err != nil {
			return fmt.Errorf("reload goal: %w", err)
		}
		return nil
	})
	return g, err
}

func (r *SQLiteRepository) ListDeposits(ctx context.Context, goalID uuid.UUID) ([]core.Deposit, error) {
	ds, err := r.queries.ListDeposits(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return ds, nil
}

func (r *SQLiteRepository) AddGoalMember(ctx context.Context, m core.GoalMember) error {
	return r.inTx(ctx, func(q *Queries) error {
		if _, err := q.GetGoal(ctx, m.GoalID); errors.Is(err, sql.ErrNoRows) {
			return core.NotFound("goal", m.GoalID)
		} else if err != nil {
			return fmt.Errorf("get goal: %w", err)
		}
		n, err := q.InsertMember(ctx, m)
		if err != nil {
			return fmt.Errorf("add goal member: %w", err)
		}
		if n == 0 {
			return core.Conflict("user already shares this goal")
		}
		return nil
	})
}

func (r *SQLiteRepository) GetGoalMember(ctx context.Context, goalID, userID uuid.UUID) (core.GoalMember, error) {
	m, err := r.queries.GetMember(ctx, goalID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GoalMember{}, core.NotFound("goal member", userID)
	}
	if err != nil {
		return core.GoalMember{}, fmt.Errorf("get goal member: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) UpdateGoalMember(ctx context.Context, m core.GoalMember) error {
	n, err := r.queries.UpdateMember(ctx, m)
	if err != nil {
		return fmt.Errorf("update goal member: %w", err)
	}
	if n == 0 {
		return core.NotFound("goal member", m.UserID)
	}
	return nil
}

func (r *SQLiteRepository) ListGoalMembers(ctx context.Context, goalID uuid.UUID) ([]core.GoalMember, error) {
	ms, err := r.queries.ListMembers(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list goal members: %w", err)
	}
	return ms, nil
}
