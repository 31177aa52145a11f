package transaction

import (
	"context"
	"time"

	epos "github.com/samsamfire/goepos"
)

// Run drives the exchange until it completes and returns its result.
// Await phases suspend until the device answers, the phase deadline
// elapses or ctx is done, in which case the exchange fails with ctx's error.
func (t *Transaction) Run(ctx context.Context) epos.Result {
	for {
		ev := EventNone
		if t.step.Awaiting() {
			ev = t.wait(ctx)
			if ev == EventCancel {
				t.err = ctx.Err()
			}
		}
		status := t.advance(time.Now(), ev)
		if t.step == StepStart && status.Terminal() {
			return t.Result()
		}
	}
}

func (t *Transaction) wait(ctx context.Context) Event {
	timer := time.NewTimer(time.Until(t.deadline))
	defer timer.Stop()
	select {
	case <-t.ready:
		if time.Now().After(t.deadline) {
			return EventDeadline
		}
		return EventDataReady
	case <-timer.C:
		return EventDeadline
	case <-ctx.Done():
		return EventCancel
	}
}
