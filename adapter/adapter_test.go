package adapter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/todostore/record"
)

func titles(records []record.Record) []string {
	result := []string{}
	for _, r := range records {
		title, _ := r.Get("title")
		s, _ := title.(string)
		result = append(result, s)
	}
	return result
}

// conformance checks the behavior every adapter shares.
func conformance(t *testing.T, open func(t *testing.T) Adapter) {
	ctx := context.Background()

	t.Run("create generates id", func(t *testing.T) {
		a := open(t)
		id, err := a.Create(ctx, record.New("title", "buy milk"))
		AssertNil(err)
		AssertNotEqual(id, "")

		all, err := a.ReadAll(ctx)
		AssertNil(err)
		AssertEqual(len(all), 1)
		AssertEqual(all[0].ID(), id)
	})

	t.Run("create keeps supplied id and replaces", func(t *testing.T) {
		a := open(t)
		_, err := a.Create(ctx, record.New("id", "first", "title", "a"))
		AssertNil(err)
		_, err = a.Create(ctx, record.New("id", "second", "title", "b"))
		AssertNil(err)
		id, err := a.Create(ctx, record.New("id", "first", "title", "c"))
		AssertNil(err)
		AssertEqual(id, "first")

		all, err := a.ReadAll(ctx)
		AssertNil(err)
		AssertEqual(titles(all), []string{"c", "b"})
	})

	t.Run("creation order survives updates", func(t *testing.T) {
		a := open(t)
		ids := []string{}
		for _, title := range []string{"a", "b", "c"} {
			id, err := a.Create(ctx, record.New("title", title))
			AssertNil(err)
			ids = append(ids, id)
		}

		err := a.Update(ctx, record.New("id", ids[0], "title", "a2"))
		AssertNil(err)
		err = a.Delete(ctx, ids[1])
		AssertNil(err)

		all, err := a.ReadAll(ctx)
		AssertNil(err)
		AssertEqual(titles(all), []string{"a2", "c"})
	})

	t.Run("unknown ids", func(t *testing.T) {
		a := open(t)

		err := a.Update(ctx, record.New("id", "ghost", "title", "x"))
		AssertTrue(errors.Is(err, ErrNotFound))

		err = a.Delete(ctx, "ghost")
		AssertTrue(errors.Is(err, ErrNotFound))

		var adapterError *Error
		AssertTrue(errors.As(err, &adapterError))
		AssertEqual(adapterError.Op, "delete")
		AssertEqual(adapterError.ID, "ghost")
	})

	t.Run("get reads one record", func(t *testing.T) {
		a := open(t)
		_, isGetter := a.(Getter)
		AssertTrue(isGetter)

		_, err := a.Create(ctx, record.New("id", "x", "title", "t"))
		AssertNil(err)
		_, err = a.Create(ctx, record.New("id", "y", "title", "u"))
		AssertNil(err)

		r, err := Get(ctx, a, "y")
		AssertNil(err)
		AssertEqual(titles([]record.Record{r}), []string{"u"})

		_, err = Get(ctx, a, "ghost")
		AssertTrue(errors.Is(err, ErrNotFound))
	})

	t.Run("payload keeps field order", func(t *testing.T) {
		a := open(t)
		_, err := a.Create(ctx, record.New("id", "x", "title", "t", "order", 1, "done", false))
		AssertNil(err)

		all, err := a.ReadAll(ctx)
		AssertNil(err)
		AssertEqual(all[0].Keys(), []string{"id", "title", "order", "done"})
		AssertTrue(record.Equal(all[0], record.New("id", "x", "title", "t", "order", 1, "done", false)))
	})
}

func TestMemory(t *testing.T) {
	conformance(t, func(t *testing.T) Adapter {
		return NewMemory("todos")
	})
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory("todos")
	m.Close()

	_, err := m.Create(context.Background(), record.New("title", "x"))
	AssertTrue(errors.Is(err, ErrClosed))
}

func TestMemoryReadAllIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("todos")
	m.Create(ctx, record.New("id", "1", "title", "a"))

	all, _ := m.ReadAll(ctx)
	all[0].Put("title", "changed")

	again, _ := m.ReadAll(ctx)
	AssertEqual(titles(again), []string{"a"})
}

func TestJournal(t *testing.T) {
	conformance(t, func(t *testing.T) Adapter {
		j, err := OpenJournal("todos", filepath.Join(t.TempDir(), "todos.jsonl"))
		AssertNil(err)
		t.Cleanup(func() { j.Close() })
		return j
	})
}

func TestSQLite(t *testing.T) {
	conformance(t, func(t *testing.T) Adapter {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
		AssertNil(err)
		t.Cleanup(func() { s.Close() })
		return s.Namespace("todos")
	})
}

func TestSQLiteNamespaces(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
	AssertNil(err)
	defer s.Close()

	s.Namespace("b").Create(ctx, record.New("title", "x"))
	s.Namespace("a").Create(ctx, record.New("id", "1", "title", "y"))
	s.Namespace("a").Create(ctx, record.New("id", "1", "title", "z"))

	names, err := s.Namespaces(ctx)
	AssertNil(err)
	AssertEqual(names, []string{"a", "b"})

	all, err := s.Namespace("a").ReadAll(ctx)
	AssertNil(err)
	AssertEqual(titles(all), []string{"z"})

	AssertNil(s.Drop(ctx, "a"))
	names, _ = s.Namespaces(ctx)
	AssertEqual(names, []string{"b"})
}

func TestSQLiteClosed(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
	AssertNil(err)
	s.Close()

	_, err = s.Namespace("todos").ReadAll(context.Background())
	AssertTrue(errors.Is(err, ErrClosed))
}

// scanOnly hides every method but the Adapter ones.
type scanOnly struct {
	Adapter
}

func TestGetFallsBackToReadAll(t *testing.T) {
	ctx := context.Background()
	a := scanOnly{NewMemory("todos")}
	a.Create(ctx, record.New("id", "x", "title", "t"))

	r, err := Get(ctx, a, "x")
	AssertNil(err)
	AssertEqual(r.ID(), "x")

	_, err = Get(ctx, a, "ghost")
	AssertTrue(errors.Is(err, ErrNotFound))
}
