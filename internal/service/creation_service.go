package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// Channel and stream prefixes for creation status events.
const (
	CreationChannelPrefix = "ch:creation:"
	CreationStreamPrefix  = "stream:creation:"
)

const (
	// creationLockTTL outlives the slowest run; the lock is released as soon
	// as the run finishes.
	creationLockTTL = 10 * time.Minute
	// runRetention is how long finished runs stay queryable.
	runRetention = time.Hour
)

// PermissionMessage replaces any error mentioning the operator role.
const PermissionMessage = "You don't have permission to create markets. Please contact an administrator to grant you the operator role."

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// CreationService accepts market creation requests and runs each one in the
// background under a per-operator guard, so an operator never has two runs
// in flight. Runs are not cancelled once accepted.
type CreationService struct {
	creator  *MarketCreator
	wallet   WalletContext
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*domain.CreationRun
	wg   sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// NewCreationService wires a CreationService. bus, audit and notifier may be
// nil.
func NewCreationService(
	creator *MarketCreator,
	wc WalletContext,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *CreationService {
	return &CreationService{
		creator:  creator,
		wallet:   wc,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "creation_service")),
		runs:     make(map[string]*domain.CreationRun),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Ready reports whether submissions can currently be accepted.
func (s *CreationService) Ready() error {
	if s.wallet == nil {
		return fmt.Errorf("wallet not connected: %w", domain.ErrNotReady)
	}
	return s.wallet.Ready()
}

// Submit validates readiness, takes the operator's guard and starts a run.
// It returns the accepted run immediately. A second submission while the
// operator's run is in flight fails with domain.ErrLockHeld.
func (s *CreationService) Submit(ctx context.Context, req domain.MarketCreationRequest) (domain.CreationRun, error) {
	if err := s.Ready(); err != nil {
		return domain.CreationRun{}, err
	}
	operator := s.wallet.PublicKey()

	unlock, err := s.locks.Acquire(ctx, "creation:"+operator, creationLockTTL)
	if err != nil {
		return domain.CreationRun{}, fmt.Errorf("creation_service: %w", err)
	}

	now := s.now()
	run := &domain.CreationRun{
		ID:        s.newID(),
		Operator:  operator,
		Status:    domain.StatusCreatingMarket,
		StartedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.runs[run.ID] = run
	snapshot := *run
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "market creation accepted",
		slog.String("run_id", run.ID),
		slog.String("operator", operator),
		slog.String("title", req.Title),
	)

	s.wg.Add(1)
	go s.execute(context.WithoutCancel(ctx), run.ID, req, unlock)

	return snapshot, nil
}

// Run returns the current state of a run.
func (s *CreationService) Run(runID string) (domain.CreationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return domain.CreationRun{}, fmt.Errorf("creation run %s: %w", runID, domain.ErrNotFound)
	}
	return *run, nil
}

// Events replays the status events recorded for a run. Without a bus it
// returns nil.
func (s *CreationService) Events(ctx context.Context, runID string) ([]domain.StatusEvent, error) {
	if s.bus == nil {
		return nil, nil
	}
	msgs, err := s.bus.StreamRead(ctx, CreationStreamPrefix+runID, "0", 100)
	if err != nil {
		return nil, fmt.Errorf("creation_service: read events %s: %w", runID, err)
	}
	events := make([]domain.StatusEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.StatusEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Wait blocks until every accepted run has finished or ctx is done.
func (s *CreationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CreationService) execute(ctx context.Context, runID string, req domain.MarketCreationRequest, unlock func()) {
	defer s.wg.Done()
	defer unlock()

	marketPK, err := s.creator.Create(ctx, s.wallet, req, func(status domain.CreationStatus) {
		s.advance(ctx, runID, status)
	})
	s.finish(ctx, runID, req, marketPK, err)
}

// advance records a status reached by the orchestrator and publishes it.
func (s *CreationService) advance(ctx context.Context, runID string, status domain.CreationStatus) {
	now := s.now()
	s.mu.Lock()
	run, ok := s.runs[runID]
	if ok {
		run.Status = status
		run.UpdatedAt = now
		if status.Terminal() {
			run.Done = true
		}
	}
	s.mu.Unlock()

	// Success goes out from finish, carrying the market key.
	if status == domain.StatusSuccess {
		return
	}
	s.publish(ctx, domain.StatusEvent{RunID: runID, Status: status, Timestamp: now})
}

// finish closes out a run: final state, failure event, audit entry and, when
// the market exists on-chain, an operator notification.
func (s *CreationService) finish(ctx context.Context, runID string, req domain.MarketCreationRequest, marketPK string, runErr error) {
	now := s.now()
	s.mu.Lock()
	run, ok := s.runs[runID]
	var snapshot domain.CreationRun
	if ok {
		run.MarketPK = marketPK
		run.Done = true
		run.UpdatedAt = now
		if runErr != nil {
			run.Error = UserMessage(runErr)
		}
		snapshot = *run
	}
	s.mu.Unlock()

	log := s.logger.With(slog.String("run_id", runID), slog.String("market_pk", marketPK))
	detail := map[string]any{
		"run_id":    runID,
		"operator":  snapshot.Operator,
		"market_pk": marketPK,
		"title":     req.Title,
		"status":    string(snapshot.Status),
	}

	var event string
	switch {
	case runErr == nil:
		event = "creation.succeeded"
		log.InfoContext(ctx, "market creation succeeded")
		s.notify(ctx, "market_created", "Market created",
			fmt.Sprintf("%s\nmarket: %s", req.Title, marketPK))

	case errors.Is(runErr, domain.ErrPersistFailed):
		event = "creation.reconcile_required"
		detail["error"] = runErr.Error()
		log.ErrorContext(ctx, "on-chain market has no record", slog.String("error", runErr.Error()))
		s.notify(ctx, "reconcile_required", "Market record missing",
			fmt.Sprintf("Market %s (%s) was created on-chain but its record was not written: %v", marketPK, req.Title, runErr))
		s.publish(ctx, domain.StatusEvent{RunID: runID, Status: snapshot.Status, MarketPK: marketPK, Error: snapshot.Error, Timestamp: now})

	default:
		event = "creation.failed"
		detail["error"] = runErr.Error()
		var stepErr *domain.StepError
		if errors.As(runErr, &stepErr) {
			detail["step"] = stepErr.Op
		}
		log.WarnContext(ctx, "market creation failed", slog.String("error", runErr.Error()))
		s.publish(ctx, domain.StatusEvent{RunID: runID, Status: snapshot.Status, Error: snapshot.Error, Timestamp: now})
	}

	if runErr == nil {
		s.publish(ctx, domain.StatusEvent{RunID: runID, Status: domain.StatusSuccess, MarketPK: marketPK, Timestamp: now})
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (s *CreationService) publish(ctx context.Context, ev domain.StatusEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, CreationChannelPrefix+ev.RunID, payload); err != nil {
		s.logger.WarnContext(ctx, "publish status failed", slog.String("run_id", ev.RunID), slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, CreationStreamPrefix+ev.RunID, payload); err != nil {
		s.logger.WarnContext(ctx, "append status failed", slog.String("run_id", ev.RunID), slog.String("error", err.Error()))
	}
}

func (s *CreationService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// pruneLocked drops finished runs older than runRetention. s.mu must be held.
func (s *CreationService) pruneLocked(now time.Time) {
	for id, run := range s.runs {
		if run.Done && now.Sub(run.UpdatedAt) > runRetention {
			delete(s.runs, id)
		}
	}
}

// UserMessage turns a creation error into the message shown to the operator.
// Any error mentioning the operator role becomes PermissionMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "operator role"):
		return PermissionMessage
	case errors.Is(err, domain.ErrLockHeld):
		return "A market creation is already in progress for this wallet."
	case errors.Is(err, domain.ErrNotReady):
		return "Program not initialized. Please ensure your wallet is connected."
	case errors.Is(err, domain.ErrPersistFailed):
		return "The market was created on-chain but could not be saved. An administrator has been notified."
	}
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		if stepErr.Err == nil {
			return "Error during " + stepErr.Op
		}
		return "Error during " + stepErr.Op + ": " + stepErr.Err.Error()
	}
	return msg
}

// Explain is UserMessage as a method, for callers holding the service.
func (s *CreationService) Explain(err error) string { return UserMessage(err) }
