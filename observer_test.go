package modloader

import (
	"context"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventCollector struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (c *eventCollector) observer(id string) Observer {
	return NewFunctionalObserver(id, func(ctx context.Context, event cloudevents.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, event)
		return nil
	})
}

func (c *eventCollector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type())
	}
	return out
}

func (c *eventCollector) find(eventType string) (cloudevents.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type() == eventType {
			return e, true
		}
	}
	return cloudevents.Event{}, false
}

func TestLoader_EmitsLifecycleEvents(t *testing.T) {
	l := New()
	c := &eventCollector{}
	require.NoError(t, l.RegisterObserver(c.observer("collector")))

	require.NoError(t, l.Register(simpleDescriptor("a")))
	require.NoError(t, l.Register(descriptor("b", failingFactory(errTestFactory))))
	_, err := l.LoadModule(context.Background(), "a")
	require.NoError(t, err)
	_, err = l.LoadModule(context.Background(), "b")
	require.Error(t, err)
	l.Shutdown(context.Background())

	want := []string{
		EventTypeModuleRegistered,
		EventTypeModuleLoading,
		EventTypeModuleLoaded,
		EventTypeModuleFailed,
		EventTypeModuleShutdown,
		EventTypeLoaderShutdown,
	}
	assert.Eventually(t, func() bool {
		got := c.types()
		for _, w := range want {
			if !containsString(got, w) {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	failed, ok := c.find(EventTypeModuleFailed)
	require.True(t, ok)
	assert.Equal(t, EventSource, failed.Source())
	var data ModuleEventData
	require.NoError(t, failed.DataAs(&data))
	assert.Equal(t, "b", data.Module)
	assert.Contains(t, data.Error, errTestFactory.Error())
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestLoader_ObserverEventTypeFilter(t *testing.T) {
	l := New()
	c := &eventCollector{}
	require.NoError(t, l.RegisterObserver(c.observer("loaded-only"), EventTypeModuleLoaded))

	require.NoError(t, l.Register(simpleDescriptor("a")))
	_, err := l.LoadModule(context.Background(), "a")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(c.types()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(c.types()) > 1 }, 50*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{EventTypeModuleLoaded}, c.types())
}

func TestLoader_ObserverRegistration(t *testing.T) {
	l := New()
	c := &eventCollector{}
	obs := c.observer("one")
	require.NoError(t, l.RegisterObserver(obs, EventTypeModuleLoaded, EventTypeModuleFailed))
	require.NoError(t, l.RegisterObserver(c.observer("two")))

	infos := l.GetObservers()
	require.Len(t, infos, 2)
	assert.Equal(t, "one", infos[0].ID)
	assert.Equal(t, []string{EventTypeModuleFailed, EventTypeModuleLoaded}, infos[0].EventTypes)
	assert.Empty(t, infos[1].EventTypes)

	require.NoError(t, l.UnregisterObserver(obs))
	assert.Len(t, l.GetObservers(), 1)
}

func TestLoader_ObserverPanicDoesNotBreakLoads(t *testing.T) {
	l := New()
	require.NoError(t, l.RegisterObserver(NewFunctionalObserver("panics", func(context.Context, cloudevents.Event) error {
		panic("observer panic")
	})))
	require.NoError(t, l.Register(simpleDescriptor("a")))

	_, err := l.LoadModule(context.Background(), "a")
	assert.NoError(t, err)
}

func TestNewCloudEvent(t *testing.T) {
	event := NewCloudEvent(EventTypeModuleLoaded, EventSource, ModuleEventData{Module: "a"}, map[string]any{"attempt": 1})

	require.NoError(t, ValidateCloudEvent(event))
	assert.NotEmpty(t, event.ID())
	assert.Equal(t, EventTypeModuleLoaded, event.Type())
	assert.Equal(t, cloudevents.VersionV1, event.SpecVersion())
	assert.Contains(t, event.Extensions(), "attempt")

	other := NewCloudEvent(EventTypeModuleLoaded, EventSource, nil, nil)
	assert.NotEqual(t, event.ID(), other.ID())
}

func TestNotifyObservers_RejectsInvalidEvent(t *testing.T) {
	l := New()
	err := l.NotifyObservers(context.Background(), cloudevents.NewEvent())
	assert.Error(t, err)
}
