package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"zetafin/internal/core"
)

const goalColumns = `id, description, target_cents, current_cents, created_at, target_date`

const depositColumns = `id, goal_id, user_id, amount_cents, date, source, created_at`

const memberColumns = `goal_id, user_id, custom_monthly_cents, joined_at`

func (r *Repository) CreateGoal(ctx context.Context, g *core.Goal, owner core.GoalMember) error {
	return r.inTx(ctx, func(q querier) error {
		if _, err := q.Exec(ctx, `INSERT INTO goals (`+goalColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			g.ID, g.Description, g.Target.Cents, g.Current.Cents, g.CreatedAt.UTC(), utcPtr(g.TargetDate)); err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		if _, err := q.Exec(ctx, `INSERT INTO goal_members (`+memberColumns+`) VALUES ($1, $2, $3, $4)`,
			owner.GoalID, owner.UserID, centsPtr(owner.CustomMonthlyTarget), owner.JoinedAt.UTC()); err != nil {
			return fmt.Errorf("add goal owner: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error) {
	g, err := scanGoal(r.pool.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Goal{}, core.NotFound("goal", id)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *Repository) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.id, g.description, g.target_cents, g.current_cents, g.created_at, g.target_date
		FROM goals g JOIN goal_members m ON m.goal_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC, g.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return out, nil
}

// AddDeposit raises the goal with a conditional UPDATE so concurrent deposits
// serialize on the goal row.
func (r *Repository) AddDeposit(ctx context.Context, d *core.Deposit) (core.Goal, error) {
	var g core.Goal
	err := r.inTx(ctx, func(q querier) error {
		var err error
		g, err = scanGoal(q.QueryRow(ctx, `UPDATE goals SET current_cents = current_cents + $1
			WHERE id = $2 AND current_cents <= $3
			RETURNING `+goalColumns, d.Amount.Cents, d.GoalID, math.MaxInt64-d.Amount.Cents))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goals WHERE id = $1)`, d.GoalID).Scan(&exists); err != nil {
				return fmt.Errorf("check goal: %w", err)
			}
			if !exists {
				return core.NotFound("goal", d.GoalID)
			}
			return core.InvalidState("goal cannot hold this deposit")
		}
		if err != nil {
			return fmt.Errorf("raise goal: %w", err)
		}

		if _, err := q.Exec(ctx, `INSERT INTO deposits (`+depositColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.ID, d.GoalID, d.UserID, d.Amount.Cents, d.Date.UTC(), d.Source, d.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("create deposit: %w", err)
		}
		return nil
	})
	return g, err
}

func (r *Repository) ListDeposits(ctx context.Context, goalID uuid.UUID) ([]core.Deposit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE goal_id = $1
		ORDER BY date DESC, created_at DESC, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	out := []core.Deposit{}
	for rows.Next() {
		var (
			d     core.Deposit
			cents int64
		)
		if err := rows.Scan(&d.ID, &d.GoalID, &d.UserID, &cents, &d.Date, &d.Source, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		d.Amount = core.Money{Cents: cents}
		d.Date = d.Date.UTC()
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return out, nil
}

func (r *Repository) AddGoalMember(ctx context.Context, m core.GoalMember) error {
	return r.inTx(ctx, func(q querier) error {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goals WHERE id = $1)`, m.GoalID).Scan(&exists); err != nil {
			return fmt.Errorf("check goal: %w", err)
		}
		if !exists {
			return core.NotFound("goal", m.GoalID)
		}
		tag, err := q.Exec(ctx, `INSERT INTO goal_members (`+memberColumns+`) VALUES ($1, $2, $3, $4)
			ON CONFLICT (goal_id, user_id) DO NOTHING`,
			m.GoalID, m.UserID, centsPtr(m.CustomMonthlyTarget), m.JoinedAt.UTC())
		if err != nil {
			return fmt.Errorf("add goal member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.Conflict("user already shares this goal")
		}
		return nil
	})
}

func (r *Repository) GetGoalMember(ctx context.Context, goalID, userID uuid.UUID) (core.GoalMember, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM goal_members
		WHERE goal_id = $1 AND user_id = $2`, goalID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.GoalMember{}, core.NotFound("goal member", userID)
	}
	if err != nil {
		return core.GoalMember{}, fmt.Errorf("get goal member: %w", err)
	}
	return m, nil
}

func (r *Repository) UpdateGoalMember(ctx context.Context, m core.GoalMember) error {
	tag, err := r.pool.Exec(ctx, `UPDATE goal_members SET custom_monthly_cents = $1
		WHERE goal_id = $2 AND user_id = $3`, centsPtr(m.CustomMonthlyTarget), m.GoalID, m.UserID)
	if err != nil {
		return fmt.Errorf("update goal member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("goal member", m.UserID)
	}
	return nil
}

func (r *Repository) ListGoalMembers(ctx context.Context, goalID uuid.UUID) ([]core.GoalMember, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM goal_members
		WHERE goal_id = $1
		ORDER BY joined_at, user_id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list goal members: %w", err)
	}
	defer rows.Close()

	out := []core.GoalMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goal members: %w", err)
	}
	return out, nil
}

func scanGoal(row pgx.Row) (core.Goal, error) {
	var (
		g                     core.Goal
		targetCents, curCents int64
	)
	if err := row.Scan(&g.ID, &g.Description, &targetCents, &curCents, &g.CreatedAt, &g.TargetDate); err != nil {
		return core.Goal{}, err
	}
	g.Target = core.Money{Cents: targetCents}
	g.Current = core.Money{Cents: curCents}
	g.CreatedAt = g.CreatedAt.UTC()
	g.TargetDate = utcPtr(g.TargetDate)
	return g, nil
}

func scanMember(row pgx.Row) (core.GoalMember, error) {
	var (
		m       core.GoalMember
		monthly *int64
	)
	if err := row.Scan(&m.GoalID, &m.UserID, &monthly, &m.JoinedAt); err != nil {
		return core.GoalMember{}, err
	}
	if monthly != nil {
		m.CustomMonthlyTarget = &core.Money{Cents: *monthly}
	}
	m.JoinedAt = m.JoinedAt.UTC()
	return m, nil
}

func centsPtr(m *core.Money) *int64 {
	if m == nil {
		return nil
	}
	c := m.Cents
	return &c
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
