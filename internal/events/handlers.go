package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
	"github.com/opencommercesearch/relevancy-engine/pkg/kafka"
)

// HandleQueryChanged returns a message handler that runs the rollup pipeline
// for each QueryChanged event. Malformed messages are logged and skipped so a
// poison pill cannot wedge the consumer; rollup failures are returned so the
// message is retried.
func HandleQueryChanged(coord *rollup.Coordinator) kafka.MessageHandler {
	logger := slog.Default().With("component", "query-changed-handler")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[QueryChanged](value)
		if err != nil {
			logger.Error("discarding malformed event", "key", string(key), "error", err)
			return nil
		}
		ref := event.Ref()
		if !ref.Valid() {
			logger.Error("discarding event with incomplete reference",
				"site", event.SiteID, "case", event.CaseID, "query", event.QueryID)
			return nil
		}
		logger.Info("query changed", "query", ref.String(), "reason", string(event.Reason))
		if err := coord.RollUp(ctx, ref); err != nil {
			return fmt.Errorf("%w: %s: %w", apperrors.ErrRollupFailed, ref, err)
		}
		return nil
	}
}

// HandleSweepRequested returns a message handler that runs a full sweep for
// each SweepRequested event. A partial sweep is not an error; its failures
// are already recorded in the report and logged by the coordinator.
func HandleSweepRequested(coord *rollup.Coordinator) kafka.MessageHandler {
	logger := slog.Default().With("component", "sweep-requested-handler")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[SweepRequested](value)
		if err != nil {
			logger.Error("discarding malformed event", "key", string(key), "error", err)
			return nil
		}
		logger.Info("sweep requested", "event_id", event.EventID, "requested_by", event.RequestedBy)
		_, err = coord.Sweep(ctx)
		return err
	}
}
