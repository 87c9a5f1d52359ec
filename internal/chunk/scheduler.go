// Package chunk implements C6: splits a sized leg-set into sequential
// chunks bounded by chunkMaxShares and chunkMaxNotional, optionally
// re-running preflight per chunk, dispatching each via a caller-supplied
// executor, running post-trade after each, and aborting the whole
// attempt on a drift breach. Grounded on the teacher's
// internal/infrastructure/async.Batcher fixed-size batch splitter,
// generalised from a buffered batch-flush loop to a per-chunk
// preflight+dispatch+post-trade pipeline with no background buffering.
package chunk

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/controller"
	"github.com/sawpanic/arbrouter/internal/posttrade"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
)

// Dispatch is the signature C5 exposes for executing one chunk's
// leg-set; Scheduler calls it once per chunk.
type Dispatch func(ctx context.Context, legs []router.Leg) ([]posttrade.LegFill, *router.RouterError)

// Preflight is the signature C3 exposes for re-validating one chunk
// before dispatch, when chunkPreflight is enabled.
type Preflight func(ctx context.Context, legs []router.Leg) ([]router.Leg, *router.RouterError)

// Scheduler splits and runs chunks for one attempt.
type Scheduler struct {
	cfg     config.ChunkConfig
	ctrl    *controller.Controller
	rep     *reputation.Reputation
	monitor *posttrade.Monitor
	circuitAbortBps float64
	abortCooldown   time.Duration
}

// NewScheduler wires the chunk scheduler to C9 and C8/C7.
func NewScheduler(cfg config.ChunkConfig, ctrl *controller.Controller, rep *reputation.Reputation, monitor *posttrade.Monitor, abortDriftBps float64, abortCooldownMs int) *Scheduler {
	return &Scheduler{
		cfg:             cfg,
		ctrl:            ctrl,
		rep:             rep,
		monitor:         monitor,
		circuitAbortBps: abortDriftBps,
		abortCooldown:   time.Duration(abortCooldownMs) * time.Millisecond,
	}
}

// chunkShareCount computes the per-chunk base share size, bounded by
// chunkMaxShares and chunkMaxNotional/sum(price) across legs (spec.md
// section 4.6).
func (s *Scheduler) chunkShareCount(legs []router.Leg, factor float64) float64 {
	if len(legs) == 0 {
		return 0
	}
	base := legs[0].Size * factor
	if base > s.cfg.MaxShares {
		base = s.cfg.MaxShares
	}
	priceSum := 0.0
	for _, l := range legs {
		priceSum += l.LimitPrice
	}
	if priceSum > 0 {
		notionalCap := s.cfg.MaxNotional / priceSum
		if base > notionalCap {
			base = notionalCap
		}
	}
	return base
}

// Run partitions legs' common share size into sequential chunks and
// executes each: optional re-preflight, dispatch, post-trade, sleep.
// It aborts the whole attempt if post-trade drift on any chunk reaches
// abortPostTradeDriftBps.
func (s *Scheduler) Run(ctx context.Context, legs []router.Leg, preflight Preflight, dispatch Dispatch) *router.RouterError {
	if len(legs) == 0 {
		return router.NewGateErr(router.ReasonExecution, "no legs to chunk")
	}

	snap := s.ctrl.Snapshot()
	chunkShares := s.chunkShareCount(legs, snap.ChunkFactor)
	if chunkShares <= 0 {
		return router.NewGateErr(router.ReasonExecution, "chunk size computed as zero")
	}

	totalShares := legs[0].Size
	delay := time.Duration(snap.ChunkDelayMs) * time.Millisecond

	remaining := totalShares
	for remaining > 1e-9 {
		thisChunk := math.Min(chunkShares, remaining)
		chunkLegs := make([]router.Leg, len(legs))
		for i, l := range legs {
			chunkLegs[i] = l.WithSize(thisChunk)
		}

		if s.cfg.Preflight && preflight != nil {
			sized, rerr := preflight(ctx, chunkLegs)
			if rerr != nil {
				return rerr
			}
			chunkLegs = sized
		}

		fills, rerr := dispatch(ctx, chunkLegs)
		if rerr != nil {
			return rerr
		}

		result, rerr := s.monitor.Run(ctx, fills)
		if rerr != nil {
			// A hadSuccess=true post-trade error (e.g. residual open
			// orders) means partial submission happened: terminate the
			// call immediately rather than dispatch further chunks.
			return rerr
		}
		if result.MaxDriftBps >= s.circuitAbortBps {
			s.rep.SetGlobalCooldown(s.abortCooldown)
			log.Warn().Float64("drift_bps", result.MaxDriftBps).Msg("chunk: aborting attempt on post-trade drift breach")
			return &router.RouterError{Kind: router.ReasonPostTrade, Message: "post-trade drift breached abort threshold", HadSuccess: true}
		}

		remaining -= thisChunk
		if remaining > 1e-9 {
			if err := sleepCtx(ctx, delay); err != nil {
				return router.RouterErrorFrom(router.ReasonExecution, true, err)
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
