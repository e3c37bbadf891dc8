// Package split owns the in-memory state of a bill-split session and
// the create/allocate/approve flow around it. The backend is canonical;
// the session here is a live mirror fed by getSplitStatus and by
// participant status events from the realtime channel. It is never
// persisted: a fresh Load reconstructs it after a restart.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tabshare/ordercore/internal/api"
	"github.com/tabshare/ordercore/internal/calculator"
	"github.com/tabshare/ordercore/internal/metrics"
	"github.com/tabshare/ordercore/internal/models"
)

// State is the session's position in its lifecycle.
type State int

const (
	// StateDraft: no session exists yet; Create has not succeeded.
	StateDraft State = iota

	// StateCreated: the backend assigned a split id; allocations are
	// not finalized yet.
	StateCreated

	// StateLocked: allocations were validated and communicated.
	StateLocked

	// StateCompleted: the backend marked the session settled. Terminal.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateCreated:
		return "created"
	case StateLocked:
		return "locked"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadySplit   = errors.New("order already belongs to a split")
	ErrSessionActive  = errors.New("another split session is already active")
	ErrNoSession      = errors.New("no active split session")
	ErrNotCreated     = errors.New("session is not awaiting allocations")
	ErrNoOwner        = errors.New("participants must include exactly one owner, listed first")
	ErrAmountMismatch = errors.New("allocation count does not match participant count")
)

// Backend is the remote split API the manager drives.
type Backend interface {
	CreateSplit(ctx context.Context, orderIDs []int64) (int64, error)
	GetSplitStatus(ctx context.Context, splitID int64) (*api.SplitStatus, error)
	SubmitAllocations(ctx context.Context, splitID int64, allocations []api.Allocation) error
}

// OrderStore is the slice of the local cache the manager needs.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	MarkSplit(ctx context.Context, orderIDs []int64) error
}

// Subscriber is notified when the locked session should be (re)watched
// on the realtime channel.
type Subscriber interface {
	Resubscribe(splitID int64)
}

// Session is a read-only snapshot of the in-memory split state.
type Session struct {
	ID           int64
	OrderIDs     []int64
	Total        int64
	Participants []models.Participant
	State        State
}

// Manager orchestrates one split session at a time. All methods are safe
// for concurrent use; status events and user commands may interleave.
type Manager struct {
	backend Backend
	store   OrderStore
	sub     Subscriber

	mu      sync.Mutex
	session *Session
}

// NewManager creates a manager. sub may be nil when no realtime channel
// is attached (e.g. in tests).
func NewManager(backend Backend, store OrderStore, sub Subscriber) *Manager {
	return &Manager{backend: backend, store: store, sub: sub}
}

// Create opens a split session over the given orders. participants must
// list the owner first with status ParticipantOwner. Preconditions are
// checked locally before any remote call: an order already captured by a
// split rejects the whole request, and so does a still-active session:
// one session at a time, and only a completed one may be replaced. On
// remote success the source orders are marked split atomically; on any
// failure the session stays in draft and no order is marked, so the
// caller can retry.
func (m *Manager) Create(ctx context.Context, orderIDs []int64, participants []models.Participant) error {
	if len(orderIDs) == 0 {
		return errors.New("at least one order required")
	}
	if err := validateParticipants(participants); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.State != StateCompleted {
		return fmt.Errorf("%w (split %d, state %s)", ErrSessionActive, m.session.ID, m.session.State)
	}

	var total int64
	for _, id := range orderIDs {
		order, err := m.store.GetOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("order %d not cached: %w", id, err)
		}
		if order.IsSplit {
			return fmt.Errorf("order %d: %w", id, ErrAlreadySplit)
		}
		total += order.Total
	}

	splitID, err := m.backend.CreateSplit(ctx, orderIDs)
	if err != nil {
		return fmt.Errorf("create split: %w", err)
	}

	if err := m.store.MarkSplit(ctx, orderIDs); err != nil {
		// The backend session exists but the local mark failed; keep
		// draft so the caller retries and the store's atomicity
		// guarantees no order was partially marked.
		slog.Error("Split created remotely but local mark failed", "split_id", splitID, "error", err)
		return err
	}

	m.session = &Session{
		ID:           splitID,
		OrderIDs:     append([]int64(nil), orderIDs...),
		Total:        total,
		Participants: append([]models.Participant(nil), participants...),
		State:        StateCreated,
	}
	slog.Info("Split session created",
		"split_id", splitID,
		"orders", len(orderIDs),
		"participants", len(participants),
		"total", total,
	)
	return nil
}

// SubmitAllocations finalizes per-participant amounts and locks the
// session. Even mode computes amounts in participant order, owner first.
// Custom mode validates the caller's amounts exactly; a mismatch returns
// a *calculator.ValidationError and nothing is submitted.
func (m *Manager) SubmitAllocations(ctx context.Context, mode models.SplitMode, amounts []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	if m.session.State != StateCreated {
		return fmt.Errorf("%w (state %s)", ErrNotCreated, m.session.State)
	}

	n := len(m.session.Participants)
	switch mode {
	case models.SplitEven:
		even, err := calculator.EvenAmounts(m.session.Total, n)
		if err != nil {
			return err
		}
		amounts = even
	case models.SplitCustom:
		if len(amounts) != n {
			return ErrAmountMismatch
		}
		if err := calculator.ValidateCustom(m.session.Total, amounts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown split mode %d", mode)
	}

	allocations := make([]api.Allocation, n)
	for i := range m.session.Participants {
		allocations[i] = api.Allocation{
			UserID: m.session.Participants[i].UserID,
			Amount: amounts[i],
		}
	}

	if err := m.backend.SubmitAllocations(ctx, m.session.ID, allocations); err != nil {
		return fmt.Errorf("submit allocations: %w", err)
	}

	for i := range m.session.Participants {
		m.session.Participants[i].Amount = amounts[i]
	}
	m.session.State = StateLocked
	slog.Info("Split allocations locked", "split_id", m.session.ID, "mode", mode)

	if m.sub != nil {
		m.sub.Resubscribe(m.session.ID)
	}
	return nil
}

// ApplyStatusEvent updates one participant's status from a realtime
// event. Events are only applied while the session is created or locked.
// An unknown user id is a stale or foreign event and is ignored, as is
// an event targeting the owner: the owner never accepts or rejects their
// own split, so such an event can only be stale or forged. Replaying the
// same status is a no-op, so duplicated deliveries are harmless;
// conflicting statuses apply last-write-wins by arrival order.
func (m *Manager) ApplyStatusEvent(userID int64, status models.ParticipantStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || (m.session.State != StateCreated && m.session.State != StateLocked) {
		slog.Debug("Dropping status event outside active session", "user_id", userID)
		return
	}

	for i := range m.session.Participants {
		p := &m.session.Participants[i]
		if p.UserID != userID {
			continue
		}
		if p.Status == models.ParticipantOwner {
			slog.Debug("Dropping status event targeting the owner",
				"split_id", m.session.ID,
				"user_id", userID,
			)
			return
		}
		if p.Status == status {
			return
		}
		slog.Info("Participant status changed",
			"split_id", m.session.ID,
			"user_id", userID,
			"from", p.Status,
			"to", status,
		)
		p.Status = status
		metrics.SplitStatusEvents.Inc()
		return
	}
	slog.Debug("Dropping status event for unknown participant",
		"split_id", m.session.ID,
		"user_id", userID,
	)
}

// Load reconstructs the session from the backend's canonical state,
// e.g. after a restart or when joining an existing split.
func (m *Manager) Load(ctx context.Context, splitID int64) error {
	status, err := m.backend.GetSplitStatus(ctx, splitID)
	if err != nil {
		return fmt.Errorf("get split status: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sessionFromStatus(status)
	slog.Info("Split session loaded", "split_id", splitID, "state", m.session.State)
	return nil
}

// RefreshStatus re-fetches the canonical state for the active session,
// picking up completion and any participant changes missed while the
// realtime channel was down.
func (m *Manager) RefreshStatus(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	splitID := m.session.ID
	m.mu.Unlock()

	status, err := m.backend.GetSplitStatus(ctx, splitID)
	if err != nil {
		return fmt.Errorf("get split status: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != splitID {
		return nil
	}
	m.session = sessionFromStatus(status)
	return nil
}

// Session returns a snapshot of the current session, or nil when none is
// active. The snapshot is a copy; mutating it has no effect.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	snapshot := *m.session
	snapshot.OrderIDs = append([]int64(nil), m.session.OrderIDs...)
	snapshot.Participants = append([]models.Participant(nil), m.session.Participants...)
	return &snapshot
}

func sessionFromStatus(status *api.SplitStatus) *Session {
	session := &Session{
		ID:       status.SplitID,
		OrderIDs: append([]int64(nil), status.OrderIDs...),
		Total:    status.Total,
	}
	for _, member := range status.Members {
		p := models.Participant{
			UserID: member.UserID,
			Name:   member.Name,
			Amount: member.Amount,
		}
		if member.IsOwner {
			p.Status = models.ParticipantOwner
		} else if st, ok := models.ParticipantStatusFromWire(member.Status); ok {
			p.Status = st
		} else {
			slog.Warn("Member with unknown status, treating as pending",
				"split_id", status.SplitID,
				"user_id", member.UserID,
				"status", member.Status,
			)
			p.Status = models.ParticipantPending
		}
		session.Participants = append(session.Participants, p)
	}

	switch {
	case status.IsCompleted:
		session.State = StateCompleted
	case status.Locked:
		session.State = StateLocked
	default:
		session.State = StateCreated
	}
	return session
}

func validateParticipants(participants []models.Participant) error {
	if len(participants) == 0 {
		return calculator.ErrNoParticipants
	}
	owners := 0
	for _, p := range participants {
		if p.Status == models.ParticipantOwner {
			owners++
		}
	}
	if owners != 1 || participants[0].Status != models.ParticipantOwner {
		return ErrNoOwner
	}
	return nil
}
