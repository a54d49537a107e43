// Package progress tracks per-source ingestion state across pipeline phases.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
)

// Phase identifies one stage of the ingestion pipeline.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseDownloading    Phase = "downloading"
	PhaseTranscription  Phase = "transcription"
	PhaseEmbedding      Phase = "embedding"
	PhaseStoring        Phase = "storing"
)

// PhaseProgress counts completed items against an optional total.
type PhaseProgress struct {
	mu       sync.Mutex
	current  int
	total    int
	hasTotal bool
}

// Percentage reports completion in [0,100]. The second return is false
// until a non-zero total has been set.
func (p *PhaseProgress) Percentage() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasTotal || p.total == 0 {
		return 0, false
	}
	return float64(p.current) / float64(p.total) * 100, true
}

// SetProgress overwrites the current count.
func (p *PhaseProgress) SetProgress(current int) {
	p.mu.Lock()
	p.current = current
	p.mu.Unlock()
}

// Increment adds amount to the current count.
func (p *PhaseProgress) Increment(amount int) {
	p.mu.Lock()
	p.current += amount
	p.mu.Unlock()
}

// SetTotal sets the number of items the phase will process.
func (p *PhaseProgress) SetTotal(total int) {
	p.mu.Lock()
	p.total = total
	p.hasTotal = true
	p.mu.Unlock()
}

// PhaseSnapshot is the wire form of one phase's progress.
type PhaseSnapshot struct {
	Phase      string   `json:"phase"`
	IsCurrent  bool     `json:"is_current_phase"`
	Percentage *float64 `json:"percentage"`
}

// StateSnapshot is the wire form of a source's ingestion progress.
type StateSnapshot struct {
	DataSourceID    string          `json:"data_source_id"`
	PhaseProgresses []PhaseSnapshot `json:"phase_progresses"`
}

// State holds the live progress of one source moving through the pipeline.
// Callbacks registered at creation fire when the source completes or fails.
type State struct {
	mu      sync.Mutex
	id      string
	current Phase
	phases  map[Phase]*PhaseProgress
	order   []Phase

	onSuccess func()
	onFailure func()
}

func newState(id string, onSuccess, onFailure func()) *State {
	return &State{
		id:        id,
		phases:    make(map[Phase]*PhaseProgress),
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
}

// GetOrCreatePhase returns the progress tracker for phase, creating it on
// first use. When makeCurrent is true the phase becomes the current one.
func (s *State) GetOrCreatePhase(phase Phase, makeCurrent bool) *PhaseProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[phase]
	if !ok {
		p = &PhaseProgress{}
		s.phases[phase] = p
		s.order = append(s.order, phase)
	}
	if makeCurrent {
		s.current = phase
	}
	return p
}

// Snapshot renders the state with phases in creation order.
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StateSnapshot{
		DataSourceID:    s.id,
		PhaseProgresses: make([]PhaseSnapshot, 0, len(s.order)),
	}
	for _, phase := range s.order {
		ps := PhaseSnapshot{
			Phase:     string(phase),
			IsCurrent: phase == s.current,
		}
		if pct, ok := s.phases[phase].Percentage(); ok {
			ps.Percentage = &pct
		}
		snap.PhaseProgresses = append(snap.PhaseProgresses, ps)
	}
	return snap
}

// Manager tracks ingestion state for every source currently in flight.
type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	log    zerolog.Logger
}

// NewManager creates an empty progress manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		states: make(map[string]*State),
		log:    log.With().Str("component", "progress").Logger(),
	}
}

// Create registers a source with completion callbacks, replacing any
// existing state for the same id.
func (m *Manager) Create(id string, onSuccess, onFailure func()) *State {
	st := newState(id, onSuccess, onFailure)
	m.mu.Lock()
	m.states[id] = st
	m.mu.Unlock()
	return st
}

// AddPhase ensures the source has a tracker for phase, creating the source
// state on demand for items that enter the pipeline mid-flight.
func (m *Manager) AddPhase(id string, phase Phase, makeCurrent bool) *State {
	m.mu.Lock()
	st, ok := m.states[id]
	if !ok {
		m.log.Debug().Str("data_source_id", id).Msg("adding source to progress manager")
		st = newState(id, nil, nil)
		m.states[id] = st
	}
	m.mu.Unlock()

	st.GetOrCreatePhase(phase, makeCurrent)
	return st
}

// Get returns the state for id if the source is in flight.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.Lock()
	st, ok := m.states[id]
	m.mu.Unlock()
	if !ok {
		m.log.Warn().Str("data_source_id", id).Msg("ingestion state not found")
	}
	return st, ok
}

// SetPhaseTotal sets the item total for one phase of a source.
func (m *Manager) SetPhaseTotal(id string, phase Phase, total int) {
	st, ok := m.Get(id)
	if !ok {
		return
	}
	m.log.Debug().Str("data_source_id", id).Str("phase", string(phase)).Int("total", total).
		Msg("setting phase total")
	st.GetOrCreatePhase(phase, true).SetTotal(total)
}

// IncrementPhase advances one phase of a source by amount.
func (m *Manager) IncrementPhase(id string, phase Phase, amount int) {
	st, ok := m.Get(id)
	if !ok {
		return
	}
	st.GetOrCreatePhase(phase, true).Increment(amount)
}

// SetPhaseProgress overwrites the current count for one phase of a source.
func (m *Manager) SetPhaseProgress(id string, phase Phase, current int) {
	st, ok := m.Get(id)
	if !ok {
		return
	}
	st.GetOrCreatePhase(phase, true).SetProgress(current)
}

// PhasePercentage reports progress for the named phase, or for the current
// phase when phase is empty.
func (m *Manager) PhasePercentage(id string, phase Phase) (float64, bool) {
	st, ok := m.Get(id)
	if !ok {
		return 0, false
	}

	st.mu.Lock()
	if phase == "" {
		phase = st.current
	}
	p, ok := st.phases[phase]
	st.mu.Unlock()
	if !ok {
		return 0, false
	}
	return p.Percentage()
}

// Remove drops the state for id without firing callbacks.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.states[id]
	delete(m.states, id)
	m.mu.Unlock()
	if !ok {
		m.log.Warn().Str("data_source_id", id).Msg("ingestion state not found")
	}
}

// MarkCompleted fires the success callback and removes the state. Removing
// under the lock before invoking the callback guarantees at most one of
// MarkCompleted/MarkFailed ever fires per source.
func (m *Manager) MarkCompleted(id string) {
	if st := m.pop(id); st != nil && st.onSuccess != nil {
		st.onSuccess()
	}
}

// MarkFailed fires the failure callback and removes the state.
func (m *Manager) MarkFailed(id string) {
	if st := m.pop(id); st != nil && st.onFailure != nil {
		st.onFailure()
	}
}

func (m *Manager) pop(id string) *State {
	m.mu.Lock()
	st, ok := m.states[id]
	delete(m.states, id)
	m.mu.Unlock()
	if !ok {
		m.log.Warn().Str("data_source_id", id).Msg("ingestion state not found")
		return nil
	}
	return st
}
