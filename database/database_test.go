package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/record"
)

func TestOpenIsMemoized(t *testing.T) {
	db := NewDatabase(&Config{Backend: BackendMemory})
	AssertNil(db.Load())
	AssertEqual(db.GetStatus(), StatusOperating)

	a, err := db.Open("todos")
	AssertNil(err)
	b, err := db.Open("todos")
	AssertNil(err)
	AssertTrue(a == b)

	AssertEqual(db.Namespaces(), []string{"todos"})
}

func TestOpenInvalidNamespace(t *testing.T) {
	db := NewDatabase(&Config{Backend: BackendMemory})

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := db.Open(name)
		AssertTrue(errors.Is(err, ErrInvalidNamespace))
	}
}

func TestUnknownBackend(t *testing.T) {
	db := NewDatabase(&Config{Backend: "floppy"})

	AssertNotNil(db.Load())
	AssertEqual(db.GetStatus(), StatusClosing)
}

func TestJournalReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := NewDatabase(&Config{Dir: dir})
	AssertEqual(db.Config.Backend, BackendJournal)
	AssertNil(db.Load())

	a, err := db.Open("todos")
	AssertNil(err)
	id, err := a.Create(ctx, record.New("title", "buy milk"))
	AssertNil(err)
	AssertNil(db.Stop())

	_, err = os.Stat(filepath.Join(dir, "todos.jsonl"))
	AssertNil(err)

	db = NewDatabase(&Config{Dir: dir})
	AssertNil(db.Load())
	AssertEqual(db.Namespaces(), []string{"todos"})

	a, _ = db.Open("todos")
	all, err := a.ReadAll(ctx)
	AssertNil(err)
	AssertEqual(len(all), 1)
	AssertEqual(all[0].ID(), id)

	AssertNil(db.Drop(ctx, "todos"))
	AssertEqual(len(db.Namespaces()), 0)
	_, err = os.Stat(filepath.Join(dir, "todos.jsonl"))
	AssertTrue(errors.Is(err, os.ErrNotExist))

	AssertNil(db.Stop())
}

func TestSQLiteReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := NewDatabase(&Config{Dir: dir, Backend: BackendSQLite})
	AssertNil(db.Load())
	a, _ := db.Open("work")
	a.Create(ctx, record.New("title", "a"))
	b, _ := db.Open("home")
	b.Create(ctx, record.New("title", "b"))
	AssertNil(db.Stop())

	db = NewDatabase(&Config{Dir: dir, Backend: BackendSQLite})
	AssertNil(db.Load())
	AssertEqual(db.Namespaces(), []string{"home", "work"})

	AssertNil(db.Drop(ctx, "work"))
	AssertNil(db.Stop())

	db = NewDatabase(&Config{Dir: dir, Backend: BackendSQLite})
	AssertNil(db.Load())
	AssertEqual(db.Namespaces(), []string{"home"})
	AssertNil(db.Stop())
}

func TestStopClosesAdapters(t *testing.T) {
	db := NewDatabase(&Config{Backend: BackendMemory})
	AssertNil(db.Load())
	a, _ := db.Open("todos")

	finished := make(chan struct{})
	go func() {
		db.Start()
		close(finished)
	}()

	AssertNil(db.Stop())
	<-finished

	AssertEqual(db.GetStatus(), StatusClosing)
	_, err := a.ReadAll(context.Background())
	AssertTrue(errors.Is(err, adapter.ErrClosed))

	_, err = db.Open("other")
	AssertTrue(errors.Is(err, adapter.ErrClosed))
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	db := NewDatabase(&Config{
		Backend: BackendMemory,
		Metrics: adapter.NewMetrics(registry),
	})

	a, err := db.Open("todos")
	AssertNil(err)
	a.Create(context.Background(), record.New("title", "a"))

	AssertEqual(testutil.ToFloat64(db.Config.Metrics.Operations.WithLabelValues("todos", "create", "ok")), 1.0)
}
