package collection

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/events"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
)

func Environment(f func(c *Collection, storage *adapter.Memory)) {
	storage := adapter.NewMemory("todos")
	c := New(Options{
		Adapter:    storage,
		Comparator: ByAttribute("order"),
		Defaults: func(c *Collection) record.Record {
			return record.New("title", "empty todo...", "order", c.NextOrder(), "done", false)
		},
	})
	f(c, storage)
}

func recordEvents(c *Collection) *[]string {
	names := &[]string{}
	c.On(events.All, func(e events.Event) {
		*names = append(*names, e.Name)
	}, nil)
	return names
}

func titles(c *Collection) string {
	result := []string{}
	for _, v := range c.Pluck("title") {
		result = append(result, v.(string))
	}
	return strings.Join(result, ",")
}

func TestSortStable(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a", "order", 2))
		c.AddAttributes(record.New("title", "b", "order", 1))
		c.AddAttributes(record.New("title", "c", "order", 2))
		c.AddAttributes(record.New("title", "d", "order", 1.0))
		c.AddAttributes(record.New("title", "e", "order", 0))

		AssertEqual(titles(c), "e,b,d,a,c")
	})
}

func TestInsertionOrderWithoutComparator(t *testing.T) {
	c := New(Options{})
	c.AddAttributes(record.New("title", "z"))
	c.AddAttributes(record.New("title", "a"))
	c.AddAttributes(record.New("title", "m"))

	AssertEqual(titles(c), "z,a,m")
}

func TestByFunc(t *testing.T) {
	c := New(Options{
		Comparator: ByFunc(func(a, b *model.Model) int {
			return strings.Compare(a.Get("title").(string), b.Get("title").(string))
		}),
	})
	c.AddAttributes(record.New("title", "b"))
	m, _ := c.AddAttributes(record.New("title", "c"))
	c.AddAttributes(record.New("title", "a"))
	AssertEqual(titles(c), "a,b,c")

	m.Set("title", "0")
	AssertEqual(titles(c), "0,a,b")

	AssertTrue(c.Remove(m))
	AssertEqual(titles(c), "a,b")
}

func TestNextOrder(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		AssertEqual(c.NextOrder(), 1)

		for _, order := range []any{1, 3, 3, 5} {
			c.AddAttributes(record.New("order", order))
		}
		AssertEqual(c.NextOrder(), 6)

		c.AddAttributes(record.New("order", 7.5))
		AssertEqual(c.NextOrder(), 8.5)
	})
}

func TestNextOrderFractional(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("order", 1.5))
		AssertEqual(c.NextOrder(), 2.5)

		c.AddAttributes(record.New("order", 2.5))
		AssertEqual(c.NextOrder(), 3.5)
	})
}

func TestNextOrderFollowsComparator(t *testing.T) {
	c := New(Options{Comparator: ByAttribute("position")})
	c.AddAttributes(record.New("position", 4, "order", 10))

	AssertEqual(c.NextOrder(), 5)
}

func TestDefaultsUseNextOrder(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		a, _ := c.AddAttributes(record.New("title", "a"))
		b, _ := c.AddAttributes(nil)

		AssertEqual(a.Get("order"), 1)
		AssertEqual(b.Get("order"), 2)
		AssertEqual(b.Get("title"), "empty todo...")
		AssertEqual(b.Get("done"), false)
	})
}

func TestAddDuplicate(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		names := recordEvents(c)

		first, added := c.AddAttributes(record.New("id", "1", "title", "a"))
		AssertTrue(added)

		again, added := c.AddAttributes(record.New("id", "1", "title", "b"))
		AssertFalse(added)
		AssertEqual(again, first)
		AssertFalse(c.Add(first))

		AssertEqual(c.Len(), 1)
		AssertEqual(*names, []string{"add"})
	})
}

func TestAddDoesNotPersist(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a"))

		all, _ := storage.ReadAll(context.Background())
		AssertEqual(len(all), 0)
	})
}

func TestCreate(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		names := recordEvents(c)

		m, result := c.Create(context.Background(), record.New("title", "buy milk"))
		AssertNil(<-result)

		AssertEqual(m.State(), model.Saved)
		AssertEqual(c.Get(m.ID()), m)
		AssertEqual(*names, []string{"add", "change:id", "change", "sync"})

		all, _ := storage.ReadAll(context.Background())
		AssertEqual(len(all), 1)
		AssertEqual(all[0].ID(), m.ID())
	})
}

func TestCreateFailureKeepsModel(t *testing.T) {
	storage := adapter.NewMemory("todos")
	storage.Close()
	c := New(Options{Adapter: storage})

	var failed *model.Model
	c.On("error", func(e events.Event) {
		failed = model.FromEvent(e)
	}, nil)

	m, result := c.Create(context.Background(), record.New("title", "a"))

	AssertTrue(errors.Is(<-result, adapter.ErrClosed))
	AssertEqual(failed, m)
	AssertEqual(c.Len(), 1)
	AssertEqual(m.State(), model.Unsaved)
}

func TestFetchEmitsOneReset(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		ctx := context.Background()
		storage.Create(ctx, record.New("title", "c", "order", 3))
		storage.Create(ctx, record.New("title", "a", "order", 1))
		storage.Create(ctx, record.New("title", "b", "order", 2))

		c.AddAttributes(record.New("title", "stale"))
		names := recordEvents(c)

		AssertNil(<-c.Fetch(ctx))

		AssertEqual(*names, []string{"reset", "sync"})
		AssertEqual(c.Len(), 3)
		AssertEqual(titles(c), "a,b,c")
		AssertEqual(c.First().State(), model.Saved)
	})
}

func TestFetchFailure(t *testing.T) {
	storage := adapter.NewMemory("todos")
	storage.Close()
	c := New(Options{Adapter: storage})

	var received []any
	c.On("error", func(e events.Event) {
		received = e.Args
	}, nil)

	err := <-c.Fetch(context.Background())

	AssertTrue(errors.Is(err, adapter.ErrClosed))
	AssertEqual(received[0], c)
}

func TestDestroyRemovesMember(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		ctx := context.Background()
		m, result := c.Create(ctx, record.New("title", "a"))
		<-result
		names := recordEvents(c)

		AssertNil(<-m.Destroy(ctx))

		AssertEqual(c.Len(), 0)
		AssertNil(c.Get(m.ID()))
		AssertEqual(*names, []string{"remove", "destroy"})
		AssertEqual(m.Count(""), 0)
	})
}

func TestRemoveReleasesSubscription(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		m, _ := c.AddAttributes(record.New("title", "a"))
		AssertEqual(m.Count(""), 1)

		AssertTrue(c.Remove(m))
		AssertFalse(c.Remove(m))
		AssertEqual(m.Count(""), 0)

		names := recordEvents(c)
		m.Set("title", "b")
		AssertEqual(len(*names), 0)
	})
}

func TestRebroadcast(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		m, _ := c.AddAttributes(record.New("title", "a"))

		var received events.Event
		c.On("change:title", func(e events.Event) {
			received = e
		}, nil)

		m.Set("title", "b")

		AssertEqual(received.Name, "change:title")
		AssertEqual(received.Args, []any{m, "b"})
	})
}

func TestChangeOfSortKeyRepositionsBeforeEvents(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a", "order", 1))
		c.AddAttributes(record.New("title", "b", "order", 2))
		m, _ := c.AddAttributes(record.New("title", "c", "order", 3))

		seen := ""
		c.On("change", func(e events.Event) {
			seen = titles(c)
		}, nil)

		m.Set("order", 0)

		AssertEqual(seen, "c,a,b")
		AssertEqual(titles(c), "c,a,b")
	})
}

func TestSetManyRepositionsBeforeFirstEvent(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a", "order", 1))
		c.AddAttributes(record.New("title", "b", "order", 2))
		m, _ := c.AddAttributes(record.New("title", "c", "order", 3))

		seen := []string{}
		c.On(events.All, func(e events.Event) {
			seen = append(seen, e.Name+"="+titles(c))
		}, nil)

		m.SetMany(record.New("title", "C", "order", 0))

		AssertEqual(seen, []string{
			"change:title=C,a,b",
			"change:order=C,a,b",
			"change=C,a,b",
		})
	})
}

func TestByFuncResortsBeforeFirstEvent(t *testing.T) {
	c := New(Options{
		Comparator: ByFunc(func(a, b *model.Model) int {
			return record.Compare(a.Get("order"), b.Get("order"))
		}),
	})
	c.AddAttributes(record.New("title", "a", "order", 1))
	c.AddAttributes(record.New("title", "b", "order", 2))
	m, _ := c.AddAttributes(record.New("title", "c", "order", 3))

	seen := ""
	c.On("change:order", func(e events.Event) {
		seen = titles(c)
	}, nil)

	m.Set("order", 0)

	AssertEqual(seen, "c,a,b")
	AssertEqual(titles(c), "c,a,b")
}

func TestChangeOfIdReindexesBeforeFirstEvent(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		m, _ := c.AddAttributes(record.New("title", "a"))

		var found *model.Model
		c.On("change:title", func(e events.Event) {
			found = c.Get("x")
		}, nil)

		m.SetMany(record.New("title", "b", "id", "x"))

		AssertEqual(found, m)
	})
}

func TestChangeOfIdReindexes(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		m, _ := c.AddAttributes(record.New("title", "a"))
		AssertNil(c.Get("x"))

		m.Set("id", "x")

		AssertEqual(c.Get("x"), m)
		AssertEqual(c.GetByCID(m.CID()), m)
		_, added := c.AddAttributes(record.New("id", "x"))
		AssertFalse(added)
	})
}

func TestWhere(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a", "done", true))
		c.AddAttributes(record.New("title", "b", "done", false))
		c.AddAttributes(record.New("title", "c", "done", true))

		done, err := c.Where(map[string]any{"done": true})
		AssertNil(err)
		AssertEqual(len(done), 2)
		AssertEqual(done[0].Get("title"), "a")
		AssertEqual(done[1].Get("title"), "c")

		done[0] = nil
		again, _ := c.Where(map[string]any{"done": true})
		AssertNotNil(again[0])
		AssertEqual(c.Len(), 3)

		late, err := c.Where(map[string]any{"order": map[string]any{"$gte": 2}})
		AssertNil(err)
		AssertEqual(len(late), 2)
	})
}

func TestFilterAndAccessors(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		c.AddAttributes(record.New("title", "a"))
		c.AddAttributes(record.New("title", "b"))

		AssertEqual(c.First().Get("title"), "a")
		AssertEqual(c.Last().Get("title"), "b")
		AssertNil(c.At(2))

		found := c.Filter(func(m *model.Model) bool {
			return m.Get("title") == "b"
		})
		AssertEqual(len(found), 1)

		visited := 0
		c.Each(func(i int, m *model.Model) {
			c.Remove(m)
			visited++
		})
		AssertEqual(visited, 2)
		AssertEqual(c.Len(), 0)
	})
}

func TestDestroyedModelIsNotAdded(t *testing.T) {
	Environment(func(c *Collection, storage *adapter.Memory) {
		m := c.Build(nil)
		<-m.Destroy(context.Background())

		AssertFalse(c.Add(m))
	})
}

func TestManualSchedulerCreateRace(t *testing.T) {
	ctx := context.Background()
	scheduler := &loop.Manual{}
	storage := adapter.NewMemory("todos")
	c := New(Options{Adapter: storage, Scheduler: scheduler})

	m, first := c.Create(ctx, record.New("title", "a"))
	second := m.Save(ctx, record.New("title", "b"))
	AssertEqual(scheduler.Pending(), 2)

	scheduler.Step(1)
	scheduler.Step(0)
	AssertNil(<-first)
	AssertNil(<-second)

	// both writes target one identity: a single stored copy, last completion wins
	all, _ := storage.ReadAll(ctx)
	AssertEqual(len(all), 1)
	AssertEqual(all[0].Map()["title"], "a")
}
