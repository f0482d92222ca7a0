package periods

import (
	"context"
	"time"
)

// Store is the persistence contract for periods.
type Store interface {
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context, filter Filter) ([]Period, error)
	ListAutomationCandidates(ctx context.Context) ([]Period, error)
	FindByDates(ctx context.Context, start, end time.Time) (Period, error)
	ConflictsFor(ctx context.Context, periodType PeriodType, start, end time.Time, excludeID int64) ([]Period, error)
	Insert(ctx context.Context, in Input) (Period, error)
	Update(ctx context.Context, id int64, in Input) (Period, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	Delete(ctx context.Context, id int64) error
	Summary(ctx context.Context, id int64) (Summary, error)
}

// Service orchestrates period administration.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and inserts a new period. Start dates in the past are
// rejected for periods created interactively.
func (s *Service) Create(ctx context.Context, in Input) (Period, error) {
	in.Normalize()
	if in.StartDate.Before(DateOf(s.now())) {
		return Period{}, invalid("start_date", "start date cannot be in the past for new periods")
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in Input) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if err := s.checkConflicts(ctx, in, 0); err != nil {
		return Period{}, err
	}
	return s.store.Insert(ctx, in)
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.store.Get(ctx, id)
}

// List returns periods matching the filter, newest start date first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Period, error) {
	return s.store.List(ctx, filter)
}

// Update replaces the writable fields of an active period.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Period, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if current.Status != StatusActive {
		return Period{}, ErrInvalidTransition
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if err := s.checkConflicts(ctx, in, id); err != nil {
		return Period{}, err
	}
	return s.store.Update(ctx, id, in)
}

// Delete removes a period unless it has already been processed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusCompleted {
		return ErrCompletedDelete
	}
	return s.store.Delete(ctx, id)
}

// Cancel moves an active period to cancelled so automation never picks it up.
func (s *Service) Cancel(ctx context.Context, id int64) (Period, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if err := ValidateTransition(current.Status, StatusCancelled); err != nil {
		return Period{}, err
	}
	if err := s.store.UpdateStatus(ctx, id, current.Status, StatusCancelled); err != nil {
		return Period{}, err
	}
	return s.store.Get(ctx, id)
}

// Summary aggregates the recorded payroll outcome for a period.
func (s *Service) Summary(ctx context.Context, id int64) (Summary, error) {
	return s.store.Summary(ctx, id)
}

// Today returns the service clock truncated to a calendar date.
func (s *Service) Today() time.Time {
	return DateOf(s.now())
}

func (s *Service) checkConflicts(ctx context.Context, in Input, excludeID int64) error {
	conflicts, err := s.store.ConflictsFor(ctx, in.Type, in.StartDate, in.EndDate, excludeID)
	if err != nil {
		return err
	}
	for _, existing := range conflicts {
		if DateOf(existing.StartDate).Equal(in.StartDate) && DateOf(existing.EndDate).Equal(in.EndDate) {
			return conflictError(existing, true)
		}
	}
	if len(conflicts) > 0 {
		return conflictError(conflicts[0], false)
	}
	return nil
}

// ValidateTransition checks status changes. Completed and cancelled are terminal.
func ValidateTransition(current, target Status) error {
	if current == target {
		return nil
	}
	if current == StatusActive && (target == StatusCompleted || target == StatusCancelled) {
		return nil
	}
	return ErrInvalidTransition
}
