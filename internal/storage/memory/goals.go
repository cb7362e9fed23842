package memory

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

func (s *Store) CreateGoal(_ context.Context, g *core.Goal, owner core.GoalMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return core.Conflict("goal already exists")
	}
	s.goals[g.ID] = cloneGoal(*g)
	s.members[g.ID] = []core.GoalMember{cloneMember(owner)}
	return nil
}

func (s *Store) GetGoal(_ context.Context, id uuid.UUID) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, core.NotFound("goal", id)
	}
	return cloneGoal(g), nil
}

func (s *Store) ListGoals(_ context.Context, userID uuid.UUID) ([]core.Goal, error) {
	s.mu.RLock()
	out := []core.Goal{}
	for id, ms := range s.members {
		for _, m := range ms {
			if m.UserID == userID {
				out = append(out, cloneGoal(s.goals[id]))
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) AddDeposit(_ context.Context, d *core.Deposit) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[d.GoalID]
	if !ok {
		return core.Goal{}, core.NotFound("goal", d.GoalID)
	}
	if g.Current.Cents > math.MaxInt64-d.Amount.Cents {
		return core.Goal{}, core.InvalidState("goal cannot hold this deposit")
	}
	g.Current = g.Current.Add(d.Amount)
	s.goals[g.ID] = g
	s.deposits[g.ID] = append(s.deposits[g.ID], *d)
	return cloneGoal(g), nil
}

func (s *Store) ListDeposits(_ context.Context, goalID uuid.UUID) ([]core.Deposit, error) {
	s.mu.RLock()
	out := append([]core.Deposit{}, s.deposits[goalID]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) AddGoalMember(_ context.Context, m core.GoalMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[m.GoalID]; !ok {
		return core.NotFound("goal", m.GoalID)
	}
	for _, cur := range s.members[m.GoalID] {
		if cur.UserID == m.UserID {
			return core.Conflict("user already shares this goal")
		}
	}
	s.members[m.GoalID] = append(s.members[m.GoalID], cloneMember(m))
	return nil
}

func (s *Store) GetGoalMember(_ context.Context, goalID, userID uuid.UUID) (core.GoalMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members[goalID] {
		if m.UserID == userID {
			return cloneMember(m), nil
		}
	}
	return core.GoalMember{}, core.NotFound("goal member", userID)
}

func (s *Store) UpdateGoalMember(_ context.Context, m core.GoalMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.members[m.GoalID]
	for i := range ms {
		if ms[i].UserID == m.UserID {
			ms[i].CustomMonthlyTarget = cloneMember(m).CustomMonthlyTarget
			return nil
		}
	}
	return core.NotFound("goal member", m.UserID)
}

func (s *Store) ListGoalMembers(_ context.Context, goalID uuid.UUID) ([]core.GoalMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.GoalMember, 0, len(s.members[goalID]))
	for _, m := range s.members[goalID] {
		out = append(out, cloneMember(m))
	}
	return out, nil
}

func cloneGoal(g core.Goal) core.Goal {
	if g.TargetDate != nil {
		d := *g.TargetDate
		g.TargetDate = &d
	}
	return g
}

func cloneMember(m core.GoalMember) core.GoalMember {
	if m.CustomMonthlyTarget != nil {
		v := *m.CustomMonthlyTarget
		m.CustomMonthlyTarget = &v
	}
	return m
}
