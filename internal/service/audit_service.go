package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/ids"
	"github.com/iliyamo/radiology-portal/internal/metrics"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/queue"
)

// EventPublisher hands an audit event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuditEvent) error
}

// AuditWriter stores an entry directly.
type AuditWriter interface {
	Insert(ctx context.Context, e model.AuditEntry) error
}

// AuditService records audit entries on a best-effort basis: through the
// broker when one is configured, otherwise (or when publishing fails)
// straight into the database.  Failures are logged and never returned.
type AuditService struct {
	pub     EventPublisher // nil when no broker is configured
	store   AuditWriter
	log     *zap.Logger
	timeout time.Duration
}

func NewAuditService(pub EventPublisher, store AuditWriter, log *zap.Logger) *AuditService {
	if store == nil || log == nil {
		panic("nil dependency passed to NewAuditService")
	}
	return &AuditService{pub: pub, store: store, log: log, timeout: 2 * time.Second}
}

// Record stores e.  It detaches from the request's cancellation so a client
// hanging up does not lose the entry, but still bounds the time spent.
func (s *AuditService) Record(ctx context.Context, e model.AuditEntry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if s.pub != nil {
		err := s.pub.Publish(ctx, queue.NewAuditEvent(e))
		if err == nil {
			metrics.ObserveAudit("queue")
			return
		}
		s.log.Warn("audit publish failed, writing directly",
			zap.String("action", string(e.Action)), zap.Error(err))
	}

	if err := s.store.Insert(ctx, e); err != nil {
		metrics.ObserveAudit("dropped")
		s.log.Error("audit entry dropped",
			zap.String("action", string(e.Action)),
			zap.String("target_type", e.TargetType),
			zap.Error(err))
		return
	}
	metrics.ObserveAudit("db")
}
