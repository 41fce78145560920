package modloader

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of loader events. Events follow the CloudEvents
// specification so they can be forwarded to external systems unchanged.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to.
	// Observers are invoked on their own goroutine and should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is implemented by anything observers can subscribe to. The Loader
// is a Subject.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes the observer
	// receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unknown observers are ignored.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to every interested observer without
	// blocking on them.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about the registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the Loader.
const (
	EventTypeModuleRegistered = "com.modloader.module.registered"
	EventTypeModuleLoading    = "com.modloader.module.loading"
	EventTypeModuleLoaded     = "com.modloader.module.loaded"
	EventTypeModuleFailed     = "com.modloader.module.failed"
	EventTypeModuleShutdown   = "com.modloader.module.shutdown"

	EventTypeLoaderShutdown = "com.modloader.loader.shutdown"
	EventTypeConfigApplied  = "com.modloader.config.applied"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
