// Package todos is the todo list domain built on top of collections.
package todos

import (
	"context"
	"errors"
	"strings"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/collection"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
)

const (
	Namespace    = "todos-backbone"
	DefaultTitle = "empty todo..."
)

var ErrEmptyTitle = errors.New("empty title")

type List struct {
	*collection.Collection
	Name string
}

func New(name string, a adapter.Adapter, scheduler loop.Scheduler) *List {
	return &List{
		Name: name,
		Collection: collection.New(collection.Options{
			Adapter:    a,
			Scheduler:  scheduler,
			Comparator: collection.ByAttribute("order"),
			Defaults: func(c *collection.Collection) record.Record {
				return record.New(
					"title", DefaultTitle,
					"order", c.NextOrder(),
					"done", false,
				)
			},
		}),
	}
}

func IsDone(m *model.Model) bool {
	done, _ := m.Get("done").(bool)
	return done
}

func (l *List) Done() []*model.Model {
	result, _ := l.Where(map[string]any{"done": true})
	return result
}

func (l *List) Remaining() []*model.Model {
	result, _ := l.Where(map[string]any{"done": false})
	return result
}

// Add creates a todo with the given title, blank titles are rejected.
func (l *List) Add(ctx context.Context, title string) (*model.Model, <-chan error, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil, ErrEmptyTitle
	}
	m, result := l.Create(ctx, record.New("title", title))
	return m, result, nil
}

func Toggle(ctx context.Context, m *model.Model) <-chan error {
	return m.Save(ctx, record.New("done", !IsDone(m)))
}

// Rename saves the new title; a blank title destroys the todo instead.
func Rename(ctx context.Context, m *model.Model, title string) <-chan error {
	title = strings.TrimSpace(title)
	if title == "" {
		return m.Destroy(ctx)
	}
	return m.Save(ctx, record.New("title", title))
}

// ClearCompleted destroys every done todo.
func (l *List) ClearCompleted(ctx context.Context) []<-chan error {
	results := []<-chan error{}
	for _, m := range l.Done() {
		results = append(results, m.Destroy(ctx))
	}
	return results
}

func (l *List) ToggleAll(ctx context.Context, done bool) []<-chan error {
	results := []<-chan error{}
	for _, m := range l.Models() {
		results = append(results, m.Save(ctx, record.New("done", done)))
	}
	return results
}

type Stats struct {
	Done      int  `json:"done"`
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
	AllDone   bool `json:"all_done"`
}

func (l *List) Stats() Stats {
	done := len(l.Done())
	remaining := len(l.Remaining())
	return Stats{
		Done:      done,
		Remaining: remaining,
		Total:     l.Len(),
		AllDone:   l.Len() > 0 && remaining == 0,
	}
}

// Wait blocks until every result arrives. Never call it from the loop that
// completes them.
func Wait(ctx context.Context, results ...<-chan error) error {
	errs := []error{}
	for _, result := range results {
		select {
		case err := <-result:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}
