package debug

import (
	"context"
	"reflect"
	"sync"
)

// EndReason identifies which participant won the session-end race.
type EndReason string

const (
	EndProcessExit       EndReason = "process-exit"
	EndSessionTerminated EndReason = "session-terminated"
	EndSafetyTimeout     EndReason = "safety-timeout"
)

// Watch is one cancellable participant in a race. A participant that loses
// the race must be disposed, otherwise its registration lingers and can
// spuriously match a later, unrelated session.
type Watch struct {
	name    string
	ch      any
	once    sync.Once
	dispose func()
}

// NewWatch wraps a receive channel and an optional dispose hook. A nil
// channel is a participant that never fires.
func NewWatch(name string, ch any, dispose func()) *Watch {
	return &Watch{name: name, ch: ch, dispose: dispose}
}

// Name returns the participant's name, for logging.
func (w *Watch) Name() string { return w.name }

// Dispose deregisters the participant. Safe to call more than once; the
// hook runs at most once.
func (w *Watch) Dispose() {
	w.once.Do(func() {
		if w.dispose != nil {
			w.dispose()
		}
	})
}

// AwaitFirst blocks until one participant fires or ctx is done, and returns
// the winner's index. All participants are disposed before returning, so no
// loser's registration outlives the race.
func AwaitFirst(ctx context.Context, watches ...*Watch) (int, error) {
	defer func() {
		for _, w := range watches {
			w.Dispose()
		}
	}()

	cases := make([]reflect.SelectCase, 0, len(watches)+1)
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})
	for _, w := range watches {
		ch := w.ch
		if ch == nil {
			ch = (chan struct{})(nil)
		}
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ch),
		})
	}

	chosen, _, _ := reflect.Select(cases)
	if chosen == 0 {
		return -1, ctx.Err()
	}
	return chosen - 1, nil
}
