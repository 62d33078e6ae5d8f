package archiver

import (
	"context"
	"sync"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type fakeChecker struct {
	result Result
	err    error
	calls  int
}

func (f *fakeChecker) Check(_ context.Context, _ string) (Result, error) {
	f.calls++
	return f.result, f.err
}

// scriptedRequester returns the scripted errors in order, then result.
type scriptedRequester struct {
	errs   []error
	result Result
	calls  int
	onCall func()
}

func (f *scriptedRequester) Request(_ context.Context, _ string) (Result, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return Result{}, err
		}
	}
	return f.result, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	waits  []time.Duration
	failAt int
	err    error
	cancel context.CancelFunc
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	if s.err != nil && len(s.waits) >= s.failAt {
		if s.cancel != nil {
			s.cancel()
		}
		return s.err
	}
	return nil
}

func (s *recordingSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.waits {
		if w == d {
			n++
		}
	}
	return n
}
