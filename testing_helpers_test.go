package modloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	errTestFactory  = errors.New("factory exploded")
	errTestInit     = errors.New("initialize exploded")
	errTestShutdown = errors.New("shutdown exploded")
)

// lifecycleRecorder collects the order in which instances are initialized
// and shut down.
type lifecycleRecorder struct {
	mu          sync.Mutex
	initialized []string
	initTimes   map[string]time.Time
	stopped     []string
}

func newLifecycleRecorder() *lifecycleRecorder {
	return &lifecycleRecorder{initTimes: make(map[string]time.Time)}
}

func (r *lifecycleRecorder) init(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = append(r.initialized, name)
	r.initTimes[name] = time.Now()
}

func (r *lifecycleRecorder) stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, name)
}

func (r *lifecycleRecorder) initTime(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initTimes[name]
}

func (r *lifecycleRecorder) stoppedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stopped...)
}

// testInstance implements Initializer and Shutdowner.
type testInstance struct {
	name        string
	rec         *lifecycleRecorder
	initErr     error
	shutdownErr error
}

func (i *testInstance) Initialize(context.Context) error {
	if i.rec != nil {
		i.rec.init(i.name)
	}
	return i.initErr
}

func (i *testInstance) Shutdown(context.Context) error {
	if i.rec != nil {
		i.rec.stop(i.name)
	}
	return i.shutdownErr
}

// countingFactory returns a factory building *testInstance values and the
// counter of its invocations.
func countingFactory(name string, rec *lifecycleRecorder) (Factory, *atomic.Int32) {
	calls := &atomic.Int32{}
	return func(ctx context.Context, host Host, opts map[string]any) (any, error) {
		calls.Add(1)
		return &testInstance{name: name, rec: rec}, nil
	}, calls
}

func slowFactory(name string, delay time.Duration, calls *atomic.Int32) Factory {
	return func(ctx context.Context, host Host, opts map[string]any) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		select {
		case <-time.After(delay):
			return &testInstance{name: name}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func failingFactory(err error) Factory {
	return func(context.Context, Host, map[string]any) (any, error) {
		return nil, err
	}
}

func descriptor(name string, factory Factory, deps ...string) ModuleDescriptor {
	return ModuleDescriptor{
		Name:         name,
		Dependencies: deps,
		Enabled:      true,
		Factory:      factory,
	}
}

func simpleDescriptor(name string, deps ...string) ModuleDescriptor {
	f, _ := countingFactory(name, nil)
	return descriptor(name, f, deps...)
}
