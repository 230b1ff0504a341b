package audit

import (
	"context"
	"time"

	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

// recordTimeout bounds a single change log write when the caller's context
// is already gone.
const recordTimeout = 5 * time.Second

// AuditLogger records change log entries on a best-effort basis: a failed
// write is logged and counted but never reported to the caller.
type AuditLogger struct {
	service *Service
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewAuditLogger(service *Service, log *logger.Logger, m *metrics.Metrics) *AuditLogger {
	return &AuditLogger{
		service: service,
		log:     log.WithComponent("audit"),
		metrics: m,
	}
}

// Log writes the entry synchronously. The write is detached from the
// caller's cancellation so a state change that already happened is still
// recorded.
func (l *AuditLogger) Log(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := l.service.Record(ctx, e); err != nil {
		l.metrics.AuditFailures.Inc()
		l.log.Error(err, "failed to record change log entry",
			"entity_type", e.EntityType,
			"entity_id", e.EntityID.String(),
			"operation", e.Operation,
			"actor", e.Actor,
		)
	}
}
