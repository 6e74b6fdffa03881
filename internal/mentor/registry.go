package mentor

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/kv"
)

// StateType is the record type of per-mentor memory
const StateType = "mentorState"

// State is a mentor's memory: one summary per conversation date
type State struct {
	Version   string            `json:"version"`
	Summaries map[string]string `json:"summaries"`
}

func newState() *State {
	return &State{Version: "1", Summaries: map[string]string{}}
}

// Validate implements kv.Record
func (s *State) Validate() error {
	if s.Version != "1" {
		return fmt.Errorf("unsupported version %q", s.Version)
	}
	for date, summary := range s.Summaries {
		if !calendar.Valid(date) {
			return fmt.Errorf("summary key %q is not a date", date)
		}
		if summary == "" {
			return fmt.Errorf("summary for %s is empty", date)
		}
	}
	return nil
}

// Dates returns the summary dates, oldest first
func (s *State) Dates() []string {
	dates := make([]string, 0, len(s.Summaries))
	for d := range s.Summaries {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// LastCheckInDate returns the most recent summary date
func (s *State) LastCheckInDate() (string, bool) {
	dates := s.Dates()
	if len(dates) == 0 {
		return "", false
	}
	return dates[len(dates)-1], true
}

// Registry pairs the catalog with each mentor's persisted memory. States
// are loaded on first use and cached for the life of the registry.
type Registry struct {
	catalog *Catalog
	store   *kv.Store

	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry creates a registry over store
func NewRegistry(catalog *Catalog, store *kv.Store) *Registry {
	return &Registry{
		catalog: catalog,
		store:   store,
		states:  make(map[string]*State),
	}
}

// Catalog returns the mentor catalog
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Definition returns the definition for id
func (r *Registry) Definition(id string) (Definition, error) {
	return r.catalog.Get(id)
}

// State returns a copy of the mentor's memory. A mentor that was never
// summarized has an empty state.
func (r *Registry) State(ctx context.Context, id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.loadLocked(ctx, id)
	if err != nil {
		return State{}, err
	}
	return State{Version: st.Version, Summaries: maps.Clone(st.Summaries)}, nil
}

// PutSummary records (or replaces) the summary for date and persists the
// mentor's state
func (r *Registry) PutSummary(ctx context.Context, id, date, summary string) error {
	if !calendar.Valid(date) {
		return fmt.Errorf("invalid date %q", date)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.loadLocked(ctx, id)
	if err != nil {
		return err
	}
	next := &State{Version: st.Version, Summaries: maps.Clone(st.Summaries)}
	next.Summaries[date] = summary
	if err := r.store.Set(ctx, StateType, id, next); err != nil {
		return err
	}
	r.states[id] = next
	return nil
}

func (r *Registry) loadLocked(ctx context.Context, id string) (*State, error) {
	if !r.catalog.Has(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMentor, id)
	}
	if st, ok := r.states[id]; ok {
		return st, nil
	}

	st := newState()
	found, err := r.store.Get(ctx, StateType, id, st)
	if err != nil {
		return nil, err
	}
	if !found {
		st = newState()
	}
	if st.Summaries == nil {
		st.Summaries = map[string]string{}
	}
	r.states[id] = st
	return st, nil
}
