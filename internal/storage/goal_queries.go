package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

const goalColumns = `id, description, target_cents, current_cents, created_at, target_date`

const depositColumns = `id, goal_id, user_id, amount_cents, date, source, created_at`

const memberColumns = `goal_id, user_id, custom_monthly_cents, joined_at`

const insertGoal = `INSERT INTO goals (` + goalColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertGoal(ctx context.Context, g core.Goal) error {
	_, err := q.db.ExecContext(ctx, insertGoal,
		g.ID.String(), g.Description, g.Target.Cents, g.Current.Cents,
		formatTime(g.CreatedAt), nullTime(g.TargetDate))
	return err
}

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ?`

func (q *Queries) GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id.String()))
}

const listGoals = `SELECT g.id, g.description, g.target_cents, g.current_cents, g.created_at, g.target_date
FROM goals g JOIN goal_members m ON m.goal_id = g.id
WHERE m.user_id = ?
ORDER BY g.created_at DESC, g.id`

func (q *Queries) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, listGoals, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// raiseGoal refuses amounts the current total cannot hold.
const raiseGoal = `UPDATE goals SET current_cents = current_cents + ? WHERE id = ? AND current_cents <= ?`

func (q *Queries) RaiseGoal(ctx context.Context, id uuid.UUID, amount core.Money) (int64, error) {
	res, err := q.db.ExecContext(ctx, raiseGoal, amount.Cents, id.String(), math.MaxInt64-amount.Cents)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertDeposit = `INSERT INTO deposits (` + depositColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertDeposit(ctx context.Context, d core.Deposit) error {
	_, err := q.db.ExecContext(ctx, insertDeposit,
		d.ID.String(), d.GoalID.String(), d.UserID.String(), d.Amount.Cents,
		formatTime(d.Date), d.Source, formatTime(d.CreatedAt))
	return err
}

const listDeposits = `SELECT ` + depositColumns + ` FROM deposits
WHERE goal_id = ?
ORDER BY date DESC, created_at DESC, id`

func (q *Queries) ListDeposits(ctx context.Context, goalID uuid.UUID) ([]core.Deposit, error) {
	rows, err := q.db.QueryContext(ctx, listDeposits, goalID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Deposit{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const insertMember = `INSERT INTO goal_members (` + memberColumns + `) VALUES (?, ?, ?, ?)
ON CONFLICT (goal_id, user_id) DO NOTHING`

// InsertMember reports 0 rows when the user already belongs to the goal.
func (q *Queries) InsertMember(ctx context.Context, m core.GoalMember) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertMember,
		m.GoalID.String(), m.UserID.String(), nullMoney(m.CustomMonthlyTarget), formatTime(m.JoinedAt))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getMember = `SELECT ` + memberColumns + ` FROM goal_members WHERE goal_id = ? AND user_id = ?`

func (q *Queries) GetMember(ctx context.Context, goalID, userID uuid.UUID) (core.GoalMember, error) {
	return scanMember(q.db.QueryRowContext(ctx, getMember, goalID.String(), userID.String()))
}

const updateMember = `UPDATE goal_members SET custom_monthly_cents = ? WHERE goal_id = ? AND user_id = ?`

func (q *Queries) UpdateMember(ctx context.Context, m core.GoalMember) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateMember,
		nullMoney(m.CustomMonthlyTarget), m.GoalID.String(), m.UserID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listMembers = `SELECT ` + memberColumns + ` FROM goal_members
WHERE goal_id = ?
ORDER BY joined_at, rowid`

func (q *Queries) ListMembers(ctx context.Context, goalID uuid.UUID) ([]core.GoalMember, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, goalID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.GoalMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanGoal(s scanner) (core.Goal, error) {
	var (
		g                     core.Goal
		id, createdAt         string
		targetCents, curCents int64
		targetDate            sql.NullString
	)
	if err := s.Scan(&id, &g.Description, &targetCents, &curCents, &createdAt, &targetDate); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.ID, err = uuid.Parse(id); err != nil {
		return core.Goal{}, fmt.Errorf("parse goal id: %w", err)
	}
	g.Target = core.Money{Cents: targetCents}
	g.Current = core.Money{Cents: curCents}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Goal{}, err
	}
	if g.TargetDate, err = parseNullTime(targetDate); err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func scanDeposit(s scanner) (core.Deposit, error) {
	var (
		d                  core.Deposit
		id, goalID, userID string
		cents              int64
		date, createdAt    string
	)
	if err := s.Scan(&id, &goalID, &userID, &cents, &date, &d.Source, &createdAt); err != nil {
		return core.Deposit{}, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return core.Deposit{}, fmt.Errorf("parse deposit id: %w", err)
	}
	if d.GoalID, err = uuid.Parse(goalID); err != nil {
		return core.Deposit{}, fmt.Errorf("parse goal id: %w", err)
	}
	if d.UserID, err = uuid.Parse(userID); err != nil {
		return core.Deposit{}, fmt.Errorf("parse user id: %w", err)
	}
	d.Amount = core.Money{Cents: cents}
	if d.Date, err = parseTime(date); err != nil {
		return core.Deposit{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Deposit{}, err
	}
	return d, nil
}

func scanMember(s scanner) (core.GoalMember, error) {
	var (
		m              core.GoalMember
		goalID, userID string
		monthly        sql.NullInt64
		joinedAt       string
	)
	if err := s.Scan(&goalID, &userID, &monthly, &joinedAt); err != nil {
		return core.GoalMember{}, err
	}
	var err error
	if m.GoalID, err = uuid.Parse(goalID); err != nil {
		return core.GoalMember{}, fmt.Errorf("parse goal id: %w", err)
	}
	if m.UserID, err = uuid.Parse(userID); err != nil {
		return core.GoalMember{}, fmt.Errorf("parse user id: %w", err)
	}
	if monthly.Valid {
		m.CustomMonthlyTarget = &core.Money{Cents: monthly.Int64}
	}
	if m.JoinedAt, err = parseTime(joinedAt); err != nil {
		return core.GoalMember{}, err
	}
	return m, nil
}

func nullMoney(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}
