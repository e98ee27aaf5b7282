package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maverick250/aml-interactive-dashboard/internal/history"
)

// Worker drains spotlight alerts from the queue into the analysis
// history store so raised flags survive across dashboard sessions.
type Worker struct {
	client *Client
	store  *history.Store
}

func NewWorker(client *Client, store *history.Store) *Worker {
	return &Worker{client: client, store: store}
}

// Run consumes until ctx is cancelled. Store failures are returned to
// the consumer loop so the message is requeued rather than lost.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Alert worker starting")

	return w.client.Consume(ctx, func(msg *Message) error {
		ev := history.AlertEvent{
			RunID:      msg.RunID,
			Rule:       msg.Rule,
			Score:      msg.Score,
			ReceivedAt: msg.Timestamp,
		}
		if err := w.store.RecordAlert(ctx, ev); err != nil {
			return fmt.Errorf("record alert: %w", err)
		}
		return nil
	})
}
