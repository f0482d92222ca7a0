package periods

import (
	"context"
	"sort"
	"time"
)

type memoryStore struct {
	periods map[int64]Period
	nextID  int64
}

func newMemoryStore(seed ...Period) *memoryStore {
	s := &memoryStore{periods: make(map[int64]Period)}
	for _, p := range seed {
		if p.ID > s.nextID {
			s.nextID = p.ID
		}
		s.periods[p.ID] = p
	}
	return s
}

func (s *memoryStore) Get(ctx context.Context, id int64) (Period, error) {
	p, ok := s.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (s *memoryStore) List(ctx context.Context, filter Filter) ([]Period, error) {
	var out []Period
	for _, p := range s.periods {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *memoryStore) ListAutomationCandidates(ctx context.Context) ([]Period, error) {
	return s.List(ctx, Filter{ActiveOnly: true})
}

func (s *memoryStore) FindByDates(ctx context.Context, start, end time.Time) (Period, error) {
	for _, p := range s.periods {
		if p.StartDate.Equal(DateOf(start)) && p.EndDate.Equal(DateOf(end)) {
			return p, nil
		}
	}
	return Period{}, ErrNotFound
}

func (s *memoryStore) ConflictsFor(ctx context.Context, periodType PeriodType, start, end time.Time, excludeID int64) ([]Period, error) {
	var out []Period
	for _, p := range s.periods {
		if p.ID == excludeID || p.Type != periodType {
			continue
		}
		if p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) Insert(ctx context.Context, in Input) (Period, error) {
	s.nextID++
	p := Period{
		ID:                s.nextID,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		Type:              in.Type,
		Status:            StatusActive,
		AutomationEnabled: in.AutomationEnabled,
		AutomationRule:    in.AutomationRule,
		Description:       in.Description,
		Meta:              in.Meta,
	}
	s.periods[p.ID] = p
	return p, nil
}

func (s *memoryStore) Update(ctx context.Context, id int64, in Input) (Period, error) {
	p, ok := s.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	p.StartDate, p.EndDate, p.Type = in.StartDate, in.EndDate, in.Type
	p.AutomationEnabled, p.AutomationRule = in.AutomationEnabled, in.AutomationRule
	p.Description, p.Meta = in.Description, in.Meta
	s.periods[id] = p
	return p, nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	p, ok := s.periods[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrInvalidTransition
	}
	p.Status = to
	s.periods[id] = p
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id int64) error {
	if _, ok := s.periods[id]; !ok {
		return ErrNotFound
	}
	delete(s.periods, id)
	return nil
}

func (s *memoryStore) Summary(ctx context.Context, id int64) (Summary, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Period: p}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
