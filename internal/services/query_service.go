package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// ListQuery selects one page of a user's ledger.
type ListQuery struct {
	UserID uuid.UUID
	Filter core.TransactionFilter
	Page   int
	Limit  int
}

// QueryService serves filtered pages and period summaries. Reads never
// partially succeed: any store failure aborts the call with a query error.
type QueryService struct {
	store      TransactionStore
	categories core.Categories
	logger     *log.Logger
}

// NewQueryService uses categories as the zero-seeded key set of expense
// breakdowns. An empty set falls back to the built-in categories.
func NewQueryService(store TransactionStore, categories core.Categories) *QueryService {
	if categories.Len() == 0 {
		categories = core.NewCategories(core.DefaultExpenseCategories())
	}
	return &QueryService{
		store:      store,
		categories: categories,
		logger:     log.Default(log.ComponentQuery),
	}
}

// List returns the requested page, ordered by date descending with creation
// order breaking ties. The embedded summary covers the date range only.
func (s *QueryService) List(ctx context.Context, q ListQuery) (core.TransactionPage, error) {
	if q.Limit == 0 {
		return core.TransactionPage{}, core.Validation("limit", "must be greater than zero")
	}
	if q.Limit < 0 {
		return core.TransactionPage{}, core.Validation("limit", "must not be negative")
	}
	if q.Page < 1 {
		return core.TransactionPage{}, core.Validation("page", "must be at least 1")
	}

	f := q.Filter
	f.Start = core.NormalizeBound(f.Start)
	f.End = core.NormalizeBound(f.End)
	if err := checkRange(f.Start, f.End); err != nil {
		return core.TransactionPage{}, err
	}
	if f.Type != "" && !f.Type.IsValid() {
		return core.TransactionPage{}, core.Validation("type", "must be one of income, expense")
	}
	if f.ExpenseType != "" && !f.ExpenseType.IsValid() {
		return core.TransactionPage{}, core.Validation("expenseType", "must be one of Fixas, Variaveis, Desnecessarios")
	}

	offset := (q.Page - 1) * q.Limit

	var (
		items []core.Transaction
		total int
		rows  []core.AggregateRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.store.ListTransactions(gctx, q.UserID, f, offset, q.Limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountTransactions(gctx, q.UserID, f)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.store.AggregateTransactions(gctx, q.UserID, f.Start, f.End)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "List query failed",
			log.FieldUserID, q.UserID,
			log.FieldOperation, log.OpList,
			log.FieldError, err)
		return core.TransactionPage{}, core.QueryFailed("list transactions", err)
	}

	if items == nil {
		items = []core.Transaction{}
	}
	income, expense := totalsOf(rows)
	return core.TransactionPage{
		Items: items,
		Pagination: core.Pagination{
			CurrentPage:  q.Page,
			TotalPages:   core.TotalPages(total, q.Limit),
			TotalItems:   total,
			ItemsPerPage: q.Limit,
		},
		Summary: core.NewTotals(income, expense),
	}, nil
}

// Summary aggregates a user's entries in [start, end]. Unbounded ends stay
// null in the reported period.
func (s *QueryService) Summary(ctx context.Context, userID uuid.UUID, start, end *time.Time) (core.DetailedSummary, error) {
	start = core.NormalizeBound(start)
	end = core.NormalizeBound(end)
	if err := checkRange(start, end); err != nil {
		return core.DetailedSummary{}, err
	}

	rows, err := s.store.AggregateTransactions(ctx, userID, start, end)
	if err != nil {
		s.logger.ErrorContext(ctx, "Summary query failed",
			log.FieldUserID, userID,
			log.FieldOperation, log.OpSummary,
			log.FieldError, err)
		return core.DetailedSummary{}, core.QueryFailed("summarize transactions", err)
	}

	sum := core.DetailedSummary{
		Period: core.Period{StartDate: start, EndDate: end},
		Income: core.IncomeSummary{
			ByCategory: core.Breakdown{},
		},
		Expense: core.ExpenseSummary{
			ByCategory: core.SeededBreakdown(s.categories.Names()),
			ByType:     core.ExpenseTypeBreakdown(),
		},
	}

	// Rows for categories outside the canonical set are appended in name
	// order so the output is stable.
	sortRows(rows)
	for _, r := range rows {
		switch r.Type {
		case core.Income:
			sum.Income.Total = sum.Income.Total.Add(r.Total)
			sum.Income.Count += r.Count
			sum.Income.ByCategory = sum.Income.ByCategory.Add(r.Category, r.Total)
		case core.Expense:
			sum.Expense.Total = sum.Expense.Total.Add(r.Total)
			sum.Expense.Count += r.Count
			sum.Expense.ByCategory = sum.Expense.ByCategory.Add(r.Category, r.Total)
			if r.ExpenseType.IsValid() {
				sum.Expense.ByType = sum.Expense.ByType.Add(r.ExpenseType.Key(), r.Total)
			}
		}
	}

	totals := core.NewTotals(sum.Income.Total, sum.Expense.Total)
	sum.Balance = totals.Balance
	sum.SavingsRate = totals.SavingsRate
	return sum, nil
}

func totalsOf(rows []core.AggregateRow) (income, expense core.Money) {
	for _, r := range rows {
		switch r.Type {
		case core.Income:
			income = income.Add(r.Total)
		case core.Expense:
			expense = expense.Add(r.Total)
		}
	}
	return income, expense
}

func sortRows(rows []core.AggregateRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].ExpenseType < rows[j].ExpenseType
	})
}

func checkRange(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return core.Validation("startDate", "must not be after endDate")
	}
	return nil
}
