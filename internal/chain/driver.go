// Package chain drives discrete time into the auction engine. Heights are
// strictly monotonically increasing; within one height the pre-step hook
// runs first, then every caller submission admitted for that height, then
// the post-step hook. The engine itself never advances time.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkdior/blocklab/internal/auction"
)

// submission is one caller operation waiting for the next height.
type submission struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Driver batches caller operations and steps the engine at a fixed wall
// interval. All engine writes flow through the driver, so replicas that
// process the same submissions in the same heights reach identical state.
type Driver struct {
	engine   *auction.Engine
	logger   *slog.Logger
	tracer   trace.Tracer
	interval time.Duration
	height   uint64

	pending chan submission
	// afterStep runs once per completed height, outside the engine lock.
	afterStep func(ctx context.Context, height uint64)
}

// New returns a Driver that will step heights starting at startHeight.
func New(engine *auction.Engine, startHeight uint64, interval time.Duration, logger *slog.Logger, tp trace.TracerProvider) *Driver {
	if startHeight == 0 {
		startHeight = 1
	}
	return &Driver{
		engine:   engine,
		logger:   logger,
		tracer:   tp.Tracer("github.com/mkdior/blocklab/internal/chain"),
		interval: interval,
		height:   startHeight - 1,
		pending:  make(chan submission, 1024),
	}
}

// AfterStep registers a hook invoked after each completed height, e.g. to
// snapshot balances. Must be set before Run.
func (d *Driver) AfterStep(fn func(ctx context.Context, height uint64)) {
	d.afterStep = fn
}

// Height returns the last completed height.
func (d *Driver) Height() uint64 { return d.height }

// Submit queues fn for the next height and blocks until it has been executed
// or ctx is cancelled.
func (d *Driver) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	sub := submission{fn: fn, done: make(chan error, 1)}
	select {
	case d.pending <- sub:
	case <-ctx.Done():
		return fmt.Errorf("submission not admitted: %w", ctx.Err())
	}
	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("submission abandoned: %w", ctx.Err())
	}
}

// Run steps the engine until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "chain driver running",
		slog.Uint64("next_height", d.height+1),
		slog.Duration("interval", d.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Step(ctx)
		}
	}
}

// Step advances exactly one height: pre-step, the submissions pending at
// entry, post-step. Exposed for tests and manual drivers.
func (d *Driver) Step(ctx context.Context) {
	d.height++
	now := auction.Height(d.height)

	ctx, span := d.tracer.Start(ctx, "Driver.Step",
		trace.WithAttributes(attribute.Int64("height", int64(d.height))),
	)
	defer span.End()

	d.engine.BeginStep(ctx, now)

	for n := len(d.pending); n > 0; n-- {
		sub := <-d.pending
		sub.done <- sub.fn(ctx)
	}

	d.engine.EndStep(ctx, now)

	if d.afterStep != nil {
		d.afterStep(ctx, d.height)
	}
}
