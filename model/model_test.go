package model

import (
	"context"
	"errors"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/events"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/record"
)

type failing struct {
	*adapter.Memory
	err error
}

func (f *failing) Create(ctx context.Context, r record.Record) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.Memory.Create(ctx, r)
}

func (f *failing) Update(ctx context.Context, r record.Record) error {
	if f.err != nil {
		return f.err
	}
	return f.Memory.Update(ctx, r)
}

func (f *failing) Delete(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	return f.Memory.Delete(ctx, id)
}

func recordEvents(m *Model) *[]string {
	names := &[]string{}
	m.On(events.All, func(e events.Event) {
		*names = append(*names, e.Name)
	}, nil)
	return names
}

func TestNewMergesDefaults(t *testing.T) {
	m := New(record.New("title", "buy milk"), Options{
		Defaults: record.New("title", "empty todo...", "order", 1, "done", false),
	})

	AssertEqual(m.Attributes().Keys(), []string{"title", "order", "done"})
	AssertEqual(m.Get("title"), "buy milk")
	AssertEqual(m.State(), Unsaved)
	AssertNotEqual(m.CID(), "")
}

func TestSetNoOpEmitsNothing(t *testing.T) {
	m := New(nil, Options{})
	names := recordEvents(m)

	AssertNil(m.Set("a", 1))
	AssertNil(m.Set("a", 1))
	AssertNil(m.Set("a", 1.0))

	AssertEqual(*names, []string{"change:a", "change"})
}

func TestSetManyEvents(t *testing.T) {
	m := New(record.New("title", "a", "done", false), Options{})
	calls := []string{}
	m.On("change:title", func(e events.Event) {
		AssertEqual(FromEvent(e), m)
		calls = append(calls, "title="+e.Args[1].(string))
	}, nil)
	m.On("change:done", func(e events.Event) {
		calls = append(calls, "done")
	}, nil)
	m.On("change", func(e events.Event) {
		calls = append(calls, "change")
	}, nil)

	m.SetMany(record.New("title", "b", "done", false))

	AssertEqual(calls, []string{"title=b", "change"})
}

func TestChangeTracking(t *testing.T) {
	m := New(record.New("title", "a", "done", false), Options{})

	m.Set("title", "b")

	previous, _ := m.Previous("title")
	AssertEqual(previous, "a")
	AssertEqual(m.PreviousAttributes(), record.New("title", "a", "done", false))
	AssertEqual(m.ChangedAttributes(), record.New("title", "b"))
	AssertTrue(m.HasChanged("title"))
	AssertFalse(m.HasChanged("done"))

	m.Set("title", "b")
	AssertFalse(m.HasChanged(""))
}

func TestUnset(t *testing.T) {
	m := New(record.New("title", "a", "tag", "x"), Options{})
	names := recordEvents(m)

	AssertNil(m.Unset("tag"))
	AssertNil(m.Unset("tag"))

	AssertFalse(m.Has("tag"))
	AssertEqual(*names, []string{"change:tag", "change"})
}

func TestIdentityImmutable(t *testing.T) {
	m := New(record.New("id", "1", "title", "a"), Options{})
	names := recordEvents(m)

	AssertEqual(m.Set("id", "2"), ErrIdentityImmutable)
	AssertEqual(m.SetMany(record.New("title", "b", "id", "2")), ErrIdentityImmutable)
	AssertEqual(m.Unset("id"), ErrIdentityImmutable)
	AssertNil(m.Set("id", 1))

	AssertEqual(m.ID(), "1")
	AssertEqual(m.Get("title"), "a")
	AssertEqual(len(*names), 0)
}

func TestSaveCreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	storage := adapter.NewMemory("todos")
	m := New(record.New("title", "a"), Options{Adapter: storage})
	names := recordEvents(m)

	AssertNil(<-m.Save(ctx, nil))
	AssertEqual(m.State(), Saved)
	AssertNotEqual(m.ID(), "")

	AssertNil(<-m.Save(ctx, record.New("title", "x")))

	all, _ := storage.ReadAll(ctx)
	AssertEqual(len(all), 1)
	AssertEqual(all[0], m.Attributes())
	AssertEqual(*names, []string{"change:id", "change", "sync", "change:title", "change", "sync"})
}

func TestToMapIsIndependent(t *testing.T) {
	m := New(nil, Options{Adapter: adapter.NewMemory("todos")})
	<-m.Save(context.Background(), record.New("title", "x"))

	plain := m.ToMap()
	AssertEqual(plain["title"], "x")

	plain["title"] = "changed"
	AssertEqual(m.Get("title"), "x")
}

func TestSaveFailureKeepsAttributes(t *testing.T) {
	failure := errors.New("disk full")
	m := New(record.New("title", "a"), Options{
		Adapter: &failing{Memory: adapter.NewMemory("todos"), err: failure},
	})
	var received error
	m.On("error", func(e events.Event) {
		received = e.Args[1].(error)
	}, nil)

	err := <-m.Save(context.Background(), record.New("title", "b"))

	AssertEqual(err, failure)
	AssertEqual(received, failure)
	AssertEqual(m.Get("title"), "b")
	AssertEqual(m.State(), Unsaved)
}

func TestSaveWithoutAdapter(t *testing.T) {
	m := New(nil, Options{})
	AssertEqual(<-m.Save(context.Background(), nil), adapter.ErrNoAdapter)
}

func TestDestroyUnsaved(t *testing.T) {
	m := New(nil, Options{})
	names := recordEvents(m)

	AssertNil(<-m.Destroy(context.Background()))
	AssertEqual(m.State(), Destroyed)
	AssertEqual(*names, []string{"destroy"})
	AssertEqual(m.Count(""), 0)
}

func TestDestroyedIsTerminal(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Options{Adapter: adapter.NewMemory("todos")})
	<-m.Destroy(ctx)

	n := 0
	m.On(events.All, func(e events.Event) { n++ }, nil)

	AssertEqual(m.Set("title", "x"), ErrDestroyed)
	AssertEqual(<-m.Save(ctx, nil), ErrDestroyed)
	AssertEqual(<-m.Destroy(ctx), ErrDestroyed)
	AssertEqual(n, 0)
}

func TestDestroyFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	storage := &failing{Memory: adapter.NewMemory("todos")}
	m := New(record.New("title", "a"), Options{Adapter: storage})
	<-m.Save(ctx, nil)

	storage.err = errors.New("offline")
	names := recordEvents(m)

	AssertNotNil(<-m.Destroy(ctx))
	AssertEqual(m.State(), Saved)

	storage.err = nil
	AssertNil(<-m.Destroy(ctx))
	AssertEqual(m.State(), Destroyed)
	AssertEqual(*names, []string{"error", "destroy"})

	all, _ := storage.ReadAll(ctx)
	AssertEqual(len(all), 0)
}

func TestOverlappingSavesLastCompletionWins(t *testing.T) {
	ctx := context.Background()
	scheduler := &loop.Manual{}
	storage := adapter.NewMemory("todos")
	m := Restore(record.New("id", "1", "title", "a"), Options{Adapter: storage, Scheduler: scheduler})
	storage.Create(ctx, m.Attributes())

	first := m.Save(ctx, record.New("title", "b"))
	second := m.Save(ctx, record.New("title", "c"))
	AssertEqual(scheduler.Pending(), 2)

	scheduler.Step(1)
	scheduler.Step(0)
	AssertNil(<-first)
	AssertNil(<-second)

	all, _ := storage.ReadAll(ctx)
	AssertEqual(all[0].Map()["title"], "b")
	AssertEqual(m.Get("title"), "c")
}

func TestSaveCompletingAfterDestroy(t *testing.T) {
	ctx := context.Background()
	scheduler := &loop.Manual{}
	storage := adapter.NewMemory("todos")
	m := New(record.New("title", "a"), Options{Adapter: storage, Scheduler: scheduler})

	saved := m.Save(ctx, nil)
	<-m.Destroy(ctx)
	AssertEqual(m.State(), Destroyed)
	names := recordEvents(m)

	scheduler.Drain()

	AssertNil(<-saved)
	AssertEqual(m.State(), Saved)
	AssertEqual(*names, []string{"sync"})

	all, _ := storage.ReadAll(ctx)
	AssertEqual(len(all), 1)

	// the late write can be cleaned up
	destroyed := m.Destroy(ctx)
	scheduler.Drain()
	AssertNil(<-destroyed)
	AssertEqual(m.State(), Destroyed)

	all, _ = storage.ReadAll(ctx)
	AssertEqual(len(all), 0)
}

func TestSaveFailingAfterDestroy(t *testing.T) {
	ctx := context.Background()
	scheduler := &loop.Manual{}
	storage := &failing{Memory: adapter.NewMemory("todos"), err: errors.New("offline")}
	m := New(record.New("title", "a"), Options{Adapter: storage, Scheduler: scheduler})

	saved := m.Save(ctx, nil)
	<-m.Destroy(ctx)
	names := recordEvents(m)

	scheduler.Drain()

	AssertNotNil(<-saved)
	AssertEqual(m.State(), Destroyed)
	AssertEqual(*names, []string{"error"})
}
