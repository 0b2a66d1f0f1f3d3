package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/golem-api/internal/events"
)

// SubmissionEventHandler implements events.EventHandler to connect job
// submissions to the runner. A submitted-job event nudges the claim
// loop awake so fresh work starts without waiting out the poll
// interval. Everything else is ignored; the event is an optimization,
// and a missed nudge only costs one poll interval of latency.
type SubmissionEventHandler struct {
	runner *Runner
	logger *slog.Logger
}

// NewSubmissionEventHandler creates an event handler that nudges the
// given runner on job submissions.
func NewSubmissionEventHandler(runner *Runner, logger *slog.Logger) *SubmissionEventHandler {
	if runner == nil {
		panic("runner cannot be nil")
	}
	return &SubmissionEventHandler{
		runner: runner,
		logger: logger.With(slog.String("component", "submission_event_handler")),
	}
}

// HandleEvent processes job lifecycle events.
func (h *SubmissionEventHandler) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if event.Kind != events.KindJobSubmitted {
		h.logger.Debug("ignoring event",
			slog.String("event_kind", string(event.Kind)),
			slog.String("event_id", event.ID.String()))
		return nil
	}

	h.logger.Debug("nudging runner for submitted job",
		slog.String("job_id", event.JobID.String()),
		slog.String("job_type", event.JobType))
	h.runner.Nudge()
	return nil
}

// Ensure SubmissionEventHandler implements events.EventHandler
var _ events.EventHandler = (*SubmissionEventHandler)(nil)
