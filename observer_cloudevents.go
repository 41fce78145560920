package modloader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventSource is the CloudEvents source attribute of loader events.
const EventSource = "modloader"

// CloudEvent is an alias for the CloudEvents Event type.
type CloudEvent = cloudevents.Event

// ModuleEventData is the payload of module lifecycle events.
type ModuleEventData struct {
	Module       string   `json:"module"`
	Dependencies []string `json:"dependencies,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// NewCloudEvent creates a CloudEvent with a time-ordered ID.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID returns a UUIDv7, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates event against the CloudEvents specification.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// eventSubject is the Subject implementation embedded in the Loader.
type eventSubject struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newEventSubject(logger Logger) *eventSubject {
	return &eventSubject{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

func (s *eventSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	s.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}

	s.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (s *eventSubject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
	return nil
}

func (s *eventSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	for _, reg := range s.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		reg := reg
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Observer panicked", "observerID", reg.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := reg.observer.OnEvent(ctx, event); err != nil {
				s.logger.Error("Observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

func (s *eventSubject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(s.observers))
	for id, reg := range s.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		out = append(out, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// emit builds and dispatches a loader event. Emission failures are logged.
func (s *eventSubject) emit(ctx context.Context, eventType string, data any) {
	s.mu.RLock()
	empty := len(s.observers) == 0
	s.mu.RUnlock()
	if empty {
		return
	}
	event := NewCloudEvent(eventType, EventSource, data, nil)
	if err := s.NotifyObservers(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
