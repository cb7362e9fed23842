package http

import (
	"net/http"

	"zetafin/internal/log"
	"zetafin/internal/services"
)

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	var req GoalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	targetDate, err := ParseOptionalDate("targetDate", req.TargetDate)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	g, err := s.svc.Goals.Create(r.Context(), services.CreateGoalInput{
		UserID:        userID,
		Description:   sanitizeInput(req.Description),
		Target:        req.TargetAmount,
		TargetDate:    targetDate,
		MonthlyTarget: req.MonthlyTarget,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/goals/"+g.ID.String()).
		Data(g).
		Write(w)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	goals, err := s.svc.Goals.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(goals).Write(w)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	g, err := s.svc.Goals.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(g).Write(w)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpDeposit, err)
		return
	}

	var req DepositRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpDeposit, err)
		return
	}
	date, err := ParseDateField(req.Date)
	if err != nil {
		writeError(w, r, log.OpDeposit, err)
		return
	}

	res, err := s.svc.Goals.Deposit(r.Context(), services.DepositInput{
		GoalID: id,
		UserID: userID,
		Amount: req.Amount,
		Date:   date,
		Source: sanitizeInput(req.Source),
	})
	if err != nil {
		writeError(w, r, log.OpDeposit, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(res).Write(w)
}

func (s *Server) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	ds, err := s.svc.Goals.Deposits(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(ds).Write(w)
}

func (s *Server) handleShareGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpShare, err)
		return
	}

	var req MemberRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpShare, err)
		return
	}
	member, err := ParseUUIDField("userId", req.UserID)
	if err != nil {
		writeError(w, r, log.OpShare, err)
		return
	}

	m, err := s.svc.Goals.Share(r.Context(), id, userID, member, req.MonthlyTarget)
	if err != nil {
		writeError(w, r, log.OpShare, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(m).Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	ms, err := s.svc.Goals.Members(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(ms).Write(w)
}

func (s *Server) handleSetMonthlyTarget(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	member, err := PathUUID(r, "userId")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	var req MonthlyTargetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	m, err := s.svc.Goals.SetMonthlyTarget(r.Context(), id, userID, member, req.MonthlyTarget)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(m).Write(w)
}
