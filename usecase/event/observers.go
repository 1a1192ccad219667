package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/segments/domain"
)

// NewAuditLogger writes one structured log line per event.
func NewAuditLogger(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ObserverFunc(func(ctx context.Context, evt domain.Event) error {
		fields := []zap.Field{
			zap.String("event", string(evt.Name)),
			zap.String("event_id", evt.ID),
			zap.Int64("actor_id", evt.ActorID),
		}
		if evt.Segment != nil {
			fields = append(fields,
				zap.Int64("segment_id", evt.Segment.ID),
				zap.Int64("table_id", evt.Segment.TableID),
				zap.Bool("active", evt.Segment.IsActive))
		}
		if evt.RevisionMessage != nil {
			fields = append(fields, zap.String("revision_message", *evt.RevisionMessage))
		}
		logger.Info("segment event", fields...)
		return nil
	})
}
