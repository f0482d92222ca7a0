package payroll

import (
	"context"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/rashid2003/jira-payroll-automation/internal/periods"
)

type recordKey struct {
	period   int64
	employee int64
}

type memState struct {
	periods  map[int64]periods.Period
	records  map[recordKey]SalaryRecord
	payments map[recordKey]Payment
}

func (s *memState) clone() *memState {
	return &memState{
		periods:  maps.Clone(s.periods),
		records:  maps.Clone(s.records),
		payments: maps.Clone(s.payments),
	}
}

type memStore struct {
	state        *memState
	employees    []Employee
	baseSalaries map[int64]decimal.Decimal
	bonuses      map[int64]decimal.Decimal
	overtime     map[int64]decimal.Decimal
	failPayment  map[int64]error
	failEmployee error
	txCount      int
}

func newMemStore(ps ...periods.Period) *memStore {
	st := &memState{
		periods:  make(map[int64]periods.Period),
		records:  make(map[recordKey]SalaryRecord),
		payments: make(map[recordKey]Payment),
	}
	for _, p := range ps {
		st.periods[p.ID] = p
	}
	return &memStore{
		state:        st,
		baseSalaries: make(map[int64]decimal.Decimal),
		bonuses:      make(map[int64]decimal.Decimal),
		overtime:     make(map[int64]decimal.Decimal),
		failPayment:  make(map[int64]error),
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	s.txCount++
	st := s.state.clone()
	if err := fn(ctx, &memTx{store: s, state: st}); err != nil {
		return err
	}
	s.state = st
	return nil
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) ActiveEmployees(ctx context.Context) ([]Employee, error) {
	if t.store.failEmployee != nil {
		return nil, t.store.failEmployee
	}
	return append([]Employee(nil), t.store.employees...), nil
}

func (t *memTx) LockPeriod(ctx context.Context, id int64) (periods.Period, error) {
	p, ok := t.state.periods[id]
	if !ok {
		return periods.Period{}, periods.ErrNotFound
	}
	return p, nil
}

func (t *memTx) BaseSalary(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, bool, error) {
	if rec, ok := t.state.records[recordKey{periodID, employeeID}]; ok {
		return rec.BaseSalary, true, nil
	}
	base, ok := t.store.baseSalaries[employeeID]
	return base, ok, nil
}

func (t *memTx) BonusTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error) {
	return t.store.bonuses[employeeID], nil
}

func (t *memTx) OvertimeTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error) {
	return t.store.overtime[employeeID], nil
}

func (t *memTx) UpsertSalaryRecord(ctx context.Context, rec SalaryRecord) error {
	t.state.records[recordKey{rec.PeriodID, rec.EmployeeID}] = rec
	return nil
}

func (t *memTx) UpsertPayment(ctx context.Context, payment Payment) error {
	if err := t.store.failPayment[payment.EmployeeID]; err != nil {
		return err
	}
	t.state.payments[recordKey{payment.PeriodID, payment.EmployeeID}] = payment
	return nil
}

func (t *memTx) CompletePeriod(ctx context.Context, id int64) error {
	p := t.state.periods[id]
	if p.Status != periods.StatusActive {
		return &BusinessError{PeriodID: id, Err: ErrPeriodCompleted}
	}
	p.Status = periods.StatusCompleted
	t.state.periods[id] = p
	return nil
}

func (t *memTx) Savepoint(ctx context.Context, fn func(context.Context, Tx) error) error {
	sp := t.state.clone()
	if err := fn(ctx, &memTx{store: t.store, state: sp}); err != nil {
		return err
	}
	*t.state = *sp
	return nil
}
