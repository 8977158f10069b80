package audit

import (
	"context"
	"log/slog"
)

// Publisher mirrors audit entries to an external sink (Kafka). The store is
// authoritative; publish failures are logged and never fail the write path.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker consumes audit entries from a channel and mirrors them through a
// Publisher. It keeps background processing testable without wiring broker
// implementations into the write path.
type Worker struct {
	publisher Publisher
	inbox     <-chan Entry
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{publisher: publisher, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.publisher.Publish(ctx, entry); err != nil {
				if w.logger != nil {
					w.logger.ErrorContext(ctx, "failed to mirror audit entry",
						"error", err, "action", entry.Action, "entity_id", entry.EntityID.String())
				}
			}
		}
	}
}
