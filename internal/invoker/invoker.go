package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/contexts"
)

// Invoker executes scenario bodies one iteration at a time inside a
// context handle. Safe for concurrent use by runner workers.
type Invoker struct {
	handle *contexts.Handle
	log    *log.Entry
}

// New creates an invoker bound to a context handle.
func New(handle *contexts.Handle) *Invoker {
	return &Invoker{
		handle: handle,
		log:    log.WithField("component", "invoker"),
	}
}

// Invoke runs the scenario body exactly once with an identity drawn from
// the context pool, capturing wall-clock duration start-to-finish.
//
// Body errors and panics never propagate: they land on the result's Error
// field. The second return value is non-nil only for conditions the
// runner cannot recover from — the context being gone or cancelled before
// the iteration could start.
func (iv *Invoker) Invoke(ctx context.Context, body Scenario, args map[string]any) (bench.IterationResult, error) {
	ident, err := iv.handle.Acquire(ctx)
	if err != nil {
		if errors.Is(err, bench.ErrContextGone) {
			return bench.IterationResult{}, bench.ErrContextGone
		}
		return bench.IterationResult{}, err
	}
	defer iv.handle.Release(ident)

	call := Call{
		Identity:   ident,
		Args:       args,
		Precreated: iv.handle.Precreated,
	}

	result := bench.IterationResult{
		StartedAt: time.Now(),
		Identity:  ident.String(),
	}

	output, bodyErr := iv.runBody(ctx, body, call)
	result.Duration = time.Since(result.StartedAt)
	result.Output = output

	if bodyErr != nil {
		var pe *panicError
		if errors.As(bodyErr, &pe) {
			result.Error = pe.info
		} else {
			result.Error = bench.NewErrorInfo(bodyErr)
		}
		iv.log.WithFields(log.Fields{
			"identity": result.Identity,
			"duration": result.Duration,
		}).WithError(bodyErr).Debug("iteration failed")
	}
	return result, nil
}

// runBody calls the scenario body, converting panics into errors.
func (iv *Invoker) runBody(ctx context.Context, body Scenario, call Call) (output json.RawMessage, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &panicError{info: bench.NewPanicInfo(recovered)}
		}
	}()
	return body.Run(ctx, call)
}

// panicError carries a recovered panic across the error boundary so the
// traceback survives into the iteration result.
type panicError struct {
	info *bench.ErrorInfo
}

func (e *panicError) Error() string {
	return "panic: " + e.info.Message
}
