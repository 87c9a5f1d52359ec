package router

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Mode is the execution dispatch strategy for one attempt.
type Mode string

const (
	ModeAuto      Mode = "AUTO"
	ModeSequential Mode = "SEQUENTIAL"
	ModeSingleLeg  Mode = "SINGLE_LEG"
)

// VenueGroupExecutor is the subset of a venue adapter the dispatcher
// needs to submit and unwind one venue's legs; satisfied by
// internal/venue.Adapter.
type VenueGroupExecutor interface {
	Execute(ctx context.Context, legs []Leg, opts ExecutionOptions) (ExecutionResult, error)
	CancelOrders(ctx context.Context, orderIDs []string) error
	HedgeLegs(ctx context.Context, legs []Leg, slippageBps float64) (ExecutionResult, error)
}

// GroupResolver resolves a venue to the executor that submits its
// orders; a thin seam so dispatch.go never imports the venue package
// directly (avoiding an import cycle, since venue adapters are
// constructed above the router package).
type GroupResolver func(v Venue) VenueGroupExecutor

// VenueGroup is one venue's legs within an attempt, plus the quality
// score used to order SEQUENTIAL attempts and SINGLE_LEG selection.
type VenueGroup struct {
	Venue   Venue
	Legs    []Leg
	Quality float64
}

// ScoreResolver resolves a leg's token and venue reputation scores for
// composite quality ranking (spec.md section 4.5). Supplied by the
// caller (internal/app) rather than imported directly here: reputation
// itself imports router, so router cannot import reputation back.
type ScoreResolver func(l Leg) (tokenScore, venueScore float64)

// GroupLegs partitions legs by venue, preserving each venue's leg
// order, and scores each group's composite quality via score (nil
// leaves every group's Quality at zero, the pre-wiring fallback).
func GroupLegs(legs []Leg, score ScoreResolver) []VenueGroup {
	order := make([]Venue, 0, len(legs))
	byVenue := make(map[Venue][]Leg)
	for _, l := range legs {
		if _, ok := byVenue[l.Venue]; !ok {
			order = append(order, l.Venue)
		}
		byVenue[l.Venue] = append(byVenue[l.Venue], l)
	}
	groups := make([]VenueGroup, len(order))
	for i, v := range order {
		groupLegs := byVenue[v]
		groups[i] = VenueGroup{Venue: v, Legs: groupLegs, Quality: groupQuality(groupLegs, score)}
	}
	return groups
}

// groupQuality averages each leg's composite score (market quality
// fixed at 1.0 — the market-wide quality factor is applied once, at
// the attempt level, not per venue group) across a venue's legs.
func groupQuality(legs []Leg, score ScoreResolver) float64 {
	if score == nil || len(legs) == 0 {
		return 0
	}
	total := 0.0
	for _, l := range legs {
		tokenScore, venueScore := score(l)
		lq := LegQuality{Leg: l, TokenScore: tokenScore, VenueScore: venueScore, LiquidityScore: l.Size * l.LimitPrice, MarketQuality: 1.0}
		total += lq.composite()
	}
	return total / float64(len(legs))
}

// LegQuality is the composite score used for SINGLE_LEG top-N
// selection: tokenScore*0.6 + venueScore*0.3 + liquidityScore*10,
// scaled by the leg's last-preflight per-leg market quality
// (spec.md section 4.5).
type LegQuality struct {
	Leg              Leg
	TokenScore       float64
	VenueScore       float64
	LiquidityScore   float64
	MarketQuality    float64
}

func (q LegQuality) composite() float64 {
	base := q.TokenScore*0.6 + q.VenueScore*0.3 + q.LiquidityScore*10
	return base * q.MarketQuality
}

// SelectTopN ranks legs by composite quality score, descending, and
// returns the first n (or all, if n <= 0 or n >= len).
func SelectTopN(scored []LegQuality, n int) []Leg {
	if n <= 0 || n >= len(scored) {
		out := make([]Leg, len(scored))
		for i, s := range scored {
			out[i] = s.Leg
		}
		return out
	}
	ranked := make([]LegQuality, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].composite() > ranked[j].composite() })
	out := make([]Leg, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].Leg
	}
	return out
}

// orderGroupsByQuality sorts venue groups descending by quality, for
// SEQUENTIAL mode's "descending quality order" dispatch (spec.md
// section 4.5).
func orderGroupsByQuality(groups []VenueGroup) []VenueGroup {
	out := make([]VenueGroup, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quality > out[j].Quality })
	return out
}

// groupOutcome is one venue group's dispatch result, recorded so a
// later failure can unwind everything that already succeeded.
type groupOutcome struct {
	group  VenueGroup
	result ExecutionResult
	err    error
}

// DispatchResult is the outcome of one attempt's venue dispatch. When
// every group succeeds, Succeeded holds each submitted group's result;
// after a failure Succeeded is empty and HadSuccess reports whether any
// group had submitted before its orders were cancelled/hedged.
type DispatchResult struct {
	Succeeded  []ExecutionResult
	HadSuccess bool
}

// Dispatch submits groups per mode, cancelling and hedging sibling
// successes on the first failure (spec.md section 4.5: "any group
// failure triggers cancellation of successfully-submitted orders from
// sibling groups and optional hedging of their filled legs").
func Dispatch(ctx context.Context, mode Mode, groups []VenueGroup, opts ExecutionOptions, resolve GroupResolver, hedgeSlippageBps float64, hedgeOnPartial bool) (DispatchResult, *RouterError) {
	switch mode {
	case ModeAuto:
		return dispatchConcurrent(ctx, groups, opts, resolve, hedgeSlippageBps, hedgeOnPartial)
	default: // SEQUENTIAL and SINGLE_LEG both submit one group after another
		return dispatchSequential(ctx, orderGroupsByQuality(groups), opts, resolve, hedgeSlippageBps, hedgeOnPartial)
	}
}

func dispatchConcurrent(ctx context.Context, groups []VenueGroup, opts ExecutionOptions, resolve GroupResolver, hedgeSlippageBps float64, hedgeOnPartial bool) (DispatchResult, *RouterError) {
	outcomes := make([]groupOutcome, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("venue adapter panic: %v", rec)
					outcomes[i] = groupOutcome{group: grp, err: err}
				}
			}()
			exec := resolve(grp.Venue)
			if exec == nil {
				err := fmt.Errorf("no adapter registered for venue %s", grp.Venue)
				outcomes[i] = groupOutcome{group: grp, err: err}
				return err
			}
			res, execErr := exec.Execute(gctx, grp.Legs, opts)
			outcomes[i] = groupOutcome{group: grp, result: res, err: execErr}
			return execErr
		})
	}
	// errgroup cancels gctx on first error but every goroutine still
	// records its own outcome before returning, so unwind below sees
	// every group that actually got to submit.
	_ = g.Wait()
	return unwindOnFailure(ctx, outcomes, resolve, hedgeSlippageBps, hedgeOnPartial)
}

func dispatchSequential(ctx context.Context, groups []VenueGroup, opts ExecutionOptions, resolve GroupResolver, hedgeSlippageBps float64, hedgeOnPartial bool) (DispatchResult, *RouterError) {
	outcomes := make([]groupOutcome, 0, len(groups))
	for _, grp := range groups {
		exec := resolve(grp.Venue)
		if exec == nil {
			outcomes = append(outcomes, groupOutcome{group: grp, err: fmt.Errorf("no adapter registered for venue %s", grp.Venue)})
			break
		}
		res, err := execWithRecover(ctx, exec, grp.Legs, opts)
		outcomes = append(outcomes, groupOutcome{group: grp, result: res, err: err})
		if err != nil {
			break
		}
	}
	return unwindOnFailure(ctx, outcomes, resolve, hedgeSlippageBps, hedgeOnPartial)
}

func execWithRecover(ctx context.Context, exec VenueGroupExecutor, legs []Leg, opts ExecutionOptions) (res ExecutionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("venue adapter panic: %v", rec)
		}
	}()
	return exec.Execute(ctx, legs, opts)
}

// unwindOnFailure inspects every recorded outcome: if all succeeded it
// returns the successes; otherwise it cancels and optionally hedges
// every succeeded group, then returns a terminal error with
// HadSuccess set whenever at least one group actually submitted.
func unwindOnFailure(ctx context.Context, outcomes []groupOutcome, resolve GroupResolver, hedgeSlippageBps float64, hedgeOnPartial bool) (DispatchResult, *RouterError) {
	var succeeded []groupOutcome
	var failed *groupOutcome
	for i := range outcomes {
		o := outcomes[i]
		if o.err != nil {
			if failed == nil {
				failed = &o
			}
			continue
		}
		if len(o.result.OrderIDs) > 0 || len(o.result.Legs) > 0 {
			succeeded = append(succeeded, o)
		}
	}

	if failed == nil {
		results := make([]ExecutionResult, len(succeeded))
		for i, o := range succeeded {
			results[i] = o.result
		}
		return DispatchResult{Succeeded: results, HadSuccess: len(results) > 0}, nil
	}

	for _, o := range succeeded {
		exec := resolve(o.group.Venue)
		if exec == nil {
			continue
		}
		if cerr := exec.CancelOrders(ctx, o.result.OrderIDs); cerr != nil {
			// Best-effort: the post-trade monitor's residual check is the
			// backstop if a cancel here is lost.
			_ = cerr
		}
		if hedgeOnPartial {
			_, _ = exec.HedgeLegs(ctx, o.result.Legs, hedgeSlippageBps)
		}
	}

	hadSuccess := len(succeeded) > 0
	return DispatchResult{HadSuccess: hadSuccess}, RouterErrorFrom(ReasonExecution, hadSuccess, failed.err)
}
