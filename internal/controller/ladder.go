package controller

import (
	"context"
	"time"

	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/metrics"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

const ladderStageBound = 500 * time.Millisecond

// runLadder executes the three-stage Termination Ladder against wc:
// Graceful (Break), Aggressive (abandon), Forceful (kill worker process).
// A Result arriving on resultCh before stage 3 fires wins (Ok); once stage 3
// has fired, Timeout is authoritative even if a late Result arrives,
// matching the mandated race resolution. resultCh may be nil (a 0-second
// deadline): then no Result can win, and stages 1 and 2 each still wait
// their full bound before the forceful stage.
func (c *Controller) runLadder(ctx context.Context, sessionID string, wc WorkerConn, commandID string, resultCh <-chan worker.Result) (worker.Result, error) {
	logger := log.WithComponent("controller")

	// Stage 1: Graceful.
	metrics.RecordLadderStage("graceful")
	logger.Info().Str("command_id", commandID).Str("stage", "graceful").Msg("termination ladder: sending break")
	_ = wc.Send(worker.Command{CommandID: commandID, Kind: worker.KindBreak})
	if res, ok := raceForResult(resultCh, commandID, ladderStageBound); ok {
		return res, nil
	}

	// Stage 2: Aggressive — abandon the in-process wait; the worker may
	// still be running, but the parent stops paying attention to anything
	// but a terminal outcome.
	metrics.RecordLadderStage("aggressive")
	logger.Warn().Str("command_id", commandID).Str("stage", "aggressive").Msg("termination ladder: abandoning command")
	if res, ok := raceForResult(resultCh, commandID, ladderStageBound); ok {
		return res, nil
	}

	// Stage 3: Forceful — kill the worker process. Timeout is authoritative
	// from this point, regardless of any result that arrives afterward.
	metrics.RecordLadderStage("forceful")
	metrics.TerminationOutcomeTotal.WithLabelValues("timeout").Inc()
	logger.Error().Str("command_id", commandID).Str("stage", "forceful").Msg("termination ladder: killing worker")
	_ = wc.Stop(ctx)
	c.manager.MarkDead(sessionID)
	log.AuditInfo("ladder.forceful_kill", "termination ladder reached forceful stage", map[string]any{
		"session_id": sessionID,
		"command_id": commandID,
	})

	return worker.Result{
		CommandID: commandID,
		Status:    worker.StatusTimeout,
	}, nil
}

func raceForResult(resultCh <-chan worker.Result, commandID string, bound time.Duration) (worker.Result, bool) {
	if resultCh == nil {
		time.Sleep(bound)
		return worker.Result{}, false
	}
	deadline := time.After(bound)
	for {
		select {
		case res, ok := <-resultCh:
			if !ok {
				return worker.Result{}, false
			}
			if res.CommandID == commandID {
				metrics.TerminationOutcomeTotal.WithLabelValues("ok").Inc()
				return res, true
			}
		case <-deadline:
			return worker.Result{}, false
		}
	}
}
