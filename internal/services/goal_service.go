package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// CreateGoalInput describes a new savings goal. The creator becomes its first
// member, optionally with a personal monthly pledge.
type CreateGoalInput struct {
	UserID        uuid.UUID
	Description   string
	Target        core.Money
	TargetDate    *time.Time
	MonthlyTarget *core.Money
}

// DepositInput adds money to a goal. A zero Date means now.
type DepositInput struct {
	GoalID uuid.UUID
	UserID uuid.UUID
	Amount core.Money
	Date   time.Time
	Source string
}

// DepositResult is the stored deposit and the goal it raised.
type DepositResult struct {
	Deposit core.Deposit    `json:"deposit"`
	Goal    core.GoalStatus `json:"goal"`
}

// GoalService manages savings goals shared between users. Only members see
// or touch a goal.
type GoalService struct {
	store  GoalStore
	users  UserDirectory
	clock  core.Clock
	logger *log.Logger
}

func NewGoalService(store GoalStore, users UserDirectory, clock core.Clock) *GoalService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &GoalService{
		store:  store,
		users:  users,
		clock:  clock,
		logger: log.Default(log.ComponentGoal),
	}
}

func (s *GoalService) Create(ctx context.Context, in CreateGoalInput) (core.GoalStatus, error) {
	now := s.clock.Now()
	g := core.Goal{
		ID:          uuid.New(),
		Description: strings.TrimSpace(in.Description),
		Target:      in.Target,
		CreatedAt:   now,
	}
	if in.TargetDate != nil {
		d := core.Normalize(*in.TargetDate)
		g.TargetDate = &d
	}
	if err := core.ValidateGoal(g); err != nil {
		return core.GoalStatus{}, err
	}
	if err := core.ValidateMonthlyTarget(in.MonthlyTarget); err != nil {
		return core.GoalStatus{}, err
	}
	if err := s.requireUser(ctx, in.UserID); err != nil {
		return core.GoalStatus{}, err
	}

	owner := core.GoalMember{
		GoalID:              g.ID,
		UserID:              in.UserID,
		CustomMonthlyTarget: in.MonthlyTarget,
		JoinedAt:            now,
	}
	if err := s.store.CreateGoal(ctx, &g, owner); err != nil {
		return core.GoalStatus{}, storeError("create goal", err)
	}

	s.logger.InfoContext(ctx, "Goal created",
		log.FieldGoalID, g.ID,
		log.FieldUserID, in.UserID,
		log.FieldValueCents, g.Target.Cents)
	return g.Status(), nil
}

// Get returns a goal the user belongs to.
func (s *GoalService) Get(ctx context.Context, goalID, userID uuid.UUID) (core.GoalStatus, error) {
	g, err := s.memberGoal(ctx, goalID, userID)
	if err != nil {
		return core.GoalStatus{}, err
	}
	return g.Status(), nil
}

// List returns every goal the user belongs to, newest first.
func (s *GoalService) List(ctx context.Context, userID uuid.UUID) ([]core.GoalStatus, error) {
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, core.QueryFailed("list goals", err)
	}
	out := make([]core.GoalStatus, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Status())
	}
	return out, nil
}

// Deposit records money put towards a goal by one of its members and raises
// the goal's current amount in the same commit.
func (s *GoalService) Deposit(ctx context.Context, in DepositInput) (DepositResult, error) {
	g, err := s.memberGoal(ctx, in.GoalID, in.UserID)
	if err != nil {
		return DepositResult{}, err
	}

	now := s.clock.Now()
	d := core.Deposit{
		ID:        uuid.New(),
		GoalID:    g.ID,
		UserID:    in.UserID,
		Amount:    in.Amount,
		Date:      core.Normalize(in.Date),
		Source:    strings.TrimSpace(in.Source),
		CreatedAt: now,
	}
	if in.Date.IsZero() {
		d.Date = now
	}
	if err := core.ValidateDeposit(d, now); err != nil {
		return DepositResult{}, err
	}
	if !g.CanAdd(d.Amount) {
		return DepositResult{}, core.InvalidState("goal cannot hold this deposit")
	}

	updated, err := s.store.AddDeposit(ctx, &d)
	if err != nil {
		return DepositResult{}, storeError("add deposit", err)
	}

	s.logger.InfoContext(ctx, "Deposit added",
		log.FieldGoalID, g.ID,
		log.FieldUserID, in.UserID,
		log.FieldValueCents, d.Amount.Cents,
		log.FieldOperation, log.OpDeposit)
	return DepositResult{Deposit: d, Goal: updated.Status()}, nil
}

// Deposits lists a goal's deposits, latest first.
func (s *GoalService) Deposits(ctx context.Context, goalID, userID uuid.UUID) ([]core.Deposit, error) {
	if _, err := s.memberGoal(ctx, goalID, userID); err != nil {
		return nil, err
	}
	ds, err := s.store.ListDeposits(ctx, goalID)
	if err != nil {
		return nil, core.QueryFailed("list deposits", err)
	}
	if ds == nil {
		ds = []core.Deposit{}
	}
	return ds, nil
}

// Share adds another user to a goal. Any member may share it.
func (s *GoalService) Share(ctx context.Context, goalID, actorID, userID uuid.UUID, monthly *core.Money) (core.GoalMember, error) {
	if _, err := s.memberGoal(ctx, goalID, actorID); err != nil {
		return core.GoalMember{}, err
	}
	if err := core.ValidateMonthlyTarget(monthly); err != nil {
		return core.GoalMember{}, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return core.GoalMember{}, err
	}

	m := core.GoalMember{
		GoalID:              goalID,
		UserID:              userID,
		CustomMonthlyTarget: monthly,
		JoinedAt:            s.clock.Now(),
	}
	if err := s.store.AddGoalMember(ctx, m); err != nil {
		return core.GoalMember{}, storeError("add goal member", err)
	}

	s.logger.InfoContext(ctx, "Goal shared",
		log.FieldGoalID, goalID,
		log.FieldUserID, actorID,
		log.FieldMemberID, userID,
		log.FieldOperation, log.OpShare)
	return m, nil
}

// SetMonthlyTarget changes a member's own pledge. nil clears it. Members can
// only change their own pledge.
func (s *GoalService) SetMonthlyTarget(ctx context.Context, goalID, actorID, userID uuid.UUID, monthly *core.Money) (core.GoalMember, error) {
	if actorID != userID {
		return core.GoalMember{}, core.Unauthorized("goal member", userID)
	}
	if err := core.ValidateMonthlyTarget(monthly); err != nil {
		return core.GoalMember{}, err
	}
	if _, err := s.memberGoal(ctx, goalID, userID); err != nil {
		return core.GoalMember{}, err
	}

	m, err := s.store.GetGoalMember(ctx, goalID, userID)
	if err != nil {
		return core.GoalMember{}, readError("get goal member", err)
	}
	m.CustomMonthlyTarget = monthly
	if err := s.store.UpdateGoalMember(ctx, m); err != nil {
		return core.GoalMember{}, storeError("update goal member", err)
	}
	return m, nil
}

// Members lists who shares a goal.
func (s *GoalService) Members(ctx context.Context, goalID, userID uuid.UUID) ([]core.GoalMember, error) {
	if _, err := s.memberGoal(ctx, goalID, userID); err != nil {
		return nil, err
	}
	ms, err := s.store.ListGoalMembers(ctx, goalID)
	if err != nil {
		return nil, core.QueryFailed("list goal members", err)
	}
	if ms == nil {
		ms = []core.GoalMember{}
	}
	return ms, nil
}

// memberGoal loads the goal and checks that userID belongs to it.
func (s *GoalService) memberGoal(ctx context.Context, goalID, userID uuid.UUID) (core.Goal, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return core.Goal{}, readError("get goal", err)
	}
	if _, err := s.store.GetGoalMember(ctx, goalID, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Goal{}, core.Unauthorized("goal", goalID)
		}
		return core.Goal{}, core.QueryFailed("get goal member", err)
	}
	return g, nil
}

func (s *GoalService) requireUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return core.QueryFailed("resolve user", err)
	}
	if !ok {
		return core.NotFound("user", userID)
	}
	return nil
}
