package modloader

import (
	"context"
	"sync"
	"time"
)

// Shutdown calls Shutdown on every loaded instance that implements
// Shutdowner, concurrently, then empties the store and the in-flight table.
// A failing module is logged and does not stop the others. Only the first
// call does any work; later calls return immediately. Loads requested after
// Shutdown fail with ErrLoaderClosed.
func (l *Loader) Shutdown(ctx context.Context) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("Loader already shut down")
		return
	}
	l.closed = true
	records := l.store.drain()
	pending := len(l.inflight)
	l.inflight = make(map[string]*inflightLoad)
	timeout := l.shutdownTimeout
	l.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	l.logger.Info("Shutting down modules", "loaded", len(records), "inflight", pending)

	var wg sync.WaitGroup
	for _, rec := range records {
		sd, ok := rec.Instance.(Shutdowner)
		if !ok {
			l.logger.Debug("Module does not implement Shutdowner, skipping", "module", rec.Name)
			continue
		}
		wg.Add(1)
		go func(name string, sd Shutdowner) {
			defer wg.Done()
			l.shutdownInstance(ctx, name, sd)
		}(rec.Name, sd)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		l.logger.Error("Shutdown deadline exceeded, abandoning remaining modules", "error", ctx.Err())
	}

	l.registry.resetLoaded()
	l.stats.loaded.Set(0)
	l.emit(ctx, EventTypeLoaderShutdown, map[string]any{"modules": len(records)})
	l.logger.Info("Loader shut down")
}

func (l *Loader) shutdownInstance(ctx context.Context, name string, sd Shutdowner) {
	start := time.Now()
	err := safeCall(func() error { return sd.Shutdown(ctx) })
	if err != nil {
		err = &FactoryError{Module: name, Phase: PhaseShutdown, Err: err}
		l.logger.Error("Error shutting down module", "module", name, "error", err)
		l.emit(ctx, EventTypeModuleShutdown, ModuleEventData{Module: name, Error: err.Error()})
		return
	}
	l.logger.Info("Module shut down", "module", name, "duration", time.Since(start))
	l.emit(ctx, EventTypeModuleShutdown, ModuleEventData{Module: name, Duration: time.Since(start).String()})
}

// discard releases an instance no caller will receive, either because its
// load finished after Shutdown or because its factory outlived the timeout.
func (l *Loader) discard(name string, instance any) {
	l.logger.Warn("Discarding module instance that will not be used", "module", name)
	sd, ok := instance.(Shutdowner)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()
	l.shutdownInstance(ctx, name, sd)
}
