package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for ledger entries.
//
// It MUST be append-only with a read side for aggregation.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, tenantID string, from, to time.Time) ([]Entry, error)
	ByCall(ctx context.Context, tenantID, callID string) ([]Entry, error)
}

// Publisher fans entries out to external analytics/CRM consumers.
// Best-effort: a publish failure never fails the append.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

var ErrInvalidEntry = errors.New("ledger: invalid entry")

// Service validates and stamps ledger entries.
//
// IMPORTANT:
//   - The ledger is internal-only audit data; do not expose raw entries to
//     tenant users by default.
//   - Callers on the routing hot path should go through Recorder, which keeps
//     appends off the decision latency.
type Service struct {
	repo  Repository
	pub   Publisher
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, pub Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, pub: pub, log: log, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("ledger: repository not configured")
	}
	if e.TenantID == "" || e.CallID == "" {
		return ErrInvalidEntry
	}
	if e.Kind != KindDecision && e.Kind != KindEscalation {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}

	if s.pub != nil {
		if err := s.pub.Publish(ctx, e); err != nil {
			s.log.Debug("ledger publish failed", "tenant_id", e.TenantID, "call_id", e.CallID, "err", err)
		}
	}
	return nil
}

// ByCall returns the full ordered trail for one call, tenant-scoped.
func (s *Service) ByCall(ctx context.Context, tenantID, callID string) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("ledger: repository not configured")
	}
	if tenantID == "" || callID == "" {
		return nil, ErrInvalidEntry
	}
	return s.repo.ByCall(ctx, tenantID, callID)
}

// Recorder decouples ledger appends from the routing hot path: entries are
// queued and written by a single background worker, which preserves enqueue
// order (and therefore per-call order). Routing never waits for durability.
type Recorder struct {
	svc *Service
	ch  chan Entry
	log *slog.Logger

	done chan struct{}
}

func NewRecorder(svc *Service, buffer int, log *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		svc:  svc,
		ch:   make(chan Entry, buffer),
		log:  log,
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry, dropping (with an error log) when the queue is
// full. Losing an audit record under extreme backpressure is preferable to
// stalling live call routing.
func (r *Recorder) Record(e Entry) {
	select {
	case r.ch <- e:
	default:
		r.log.Error("ledger queue full, dropping entry", "tenant_id", e.TenantID, "call_id", e.CallID, "kind", string(e.Kind))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		// Fresh context per append: the originating request is long gone.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.svc.Append(ctx, e); err != nil {
			r.log.Error("ledger append failed", "tenant_id", e.TenantID, "call_id", e.CallID, "err", err)
		}
		cancel()
	}
}

// Close drains the queue and stops the worker. Call during shutdown.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}
