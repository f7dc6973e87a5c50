package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fulldump/box"

	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
	"github.com/fulldump/todostore/service"
	"github.com/fulldump/todostore/todos"
)

type ListResponse struct {
	Name  string          `json:"name"`
	Stats todos.Stats     `json:"stats"`
	Todos []record.Record `json:"todos,omitempty"`
}

// onLoop runs f on the loop owning every list and returns its error.
func onLoop(s service.Servicer, f func() error) error {
	var err error
	doErr := s.Loop().Do(func() {
		err = f()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func currentList(ctx context.Context) (service.Servicer, *todos.List, error) {
	s := GetServicer(ctx)
	l, err := s.GetList(ctx, box.GetUrlParameter(ctx, "listName"))
	return s, l, err
}

// currentTodo must be called on the loop.
func currentTodo(ctx context.Context, l *todos.List) (*model.Model, error) {
	id := box.GetUrlParameter(ctx, "todoId")
	m := l.Get(id)
	if m == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrTodoNotFound, id)
	}
	return m, nil
}

func snapshot(models []*model.Model) []record.Record {
	result := make([]record.Record, 0, len(models))
	for _, m := range models {
		result = append(result, m.Attributes())
	}
	return result
}

func listLists(ctx context.Context) []NamespaceResponse {
	return listNamespaces(ctx)
}

func getList(ctx context.Context) (*ListResponse, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	response := &ListResponse{Name: l.Name}
	err = onLoop(s, func() error {
		response.Stats = l.Stats()
		response.Todos = snapshot(l.Models())
		return nil
	})
	return response, err
}

func deleteList(ctx context.Context) error {
	return GetServicer(ctx).DeleteList(ctx, box.GetUrlParameter(ctx, "listName"))
}

func getStats(ctx context.Context) (*todos.Stats, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	stats := &todos.Stats{}
	err = onLoop(s, func() error {
		*stats = l.Stats()
		return nil
	})
	return stats, err
}

func clearCompleted(ctx context.Context) (*todos.Stats, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var results []<-chan error
	err = onLoop(s, func() error {
		results = l.ClearCompleted(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = todos.Wait(ctx, results...)
	if err != nil {
		return nil, err
	}

	return getStats(ctx)
}

type toggleAllInput struct {
	Done *bool `json:"done"`
}

// toggleAll marks every todo with done, or flips them all when done is
// missing: all done unless every todo already is.
func toggleAll(ctx context.Context, r *http.Request) (*todos.Stats, error) {
	input := &toggleAllInput{}
	err := decodeOptionalBody(r, input)
	if err != nil {
		return nil, err
	}

	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var results []<-chan error
	err = onLoop(s, func() error {
		done := !l.Stats().AllDone
		if input.Done != nil {
			done = *input.Done
		}
		results = l.ToggleAll(ctx, done)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = todos.Wait(ctx, results...)
	if err != nil {
		return nil, err
	}

	return getStats(ctx)
}

func listTodos(ctx context.Context) ([]record.Record, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var result []record.Record
	err = onLoop(s, func() error {
		result = snapshot(l.Models())
		return nil
	})
	return result, err
}

type addTodoInput struct {
	Title string `json:"title"`
}

func addTodo(ctx context.Context, w http.ResponseWriter, input *addTodoInput) (record.Record, error) {
	if input == nil {
		return nil, todos.ErrEmptyTitle
	}

	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var m *model.Model
	var result <-chan error
	err = onLoop(s, func() (err error) {
		m, result, err = l.Add(ctx, input.Title)
		return
	})
	if err != nil {
		return nil, err
	}
	err = todos.Wait(ctx, result)
	if err != nil {
		return nil, err
	}

	var created record.Record
	onLoop(s, func() error {
		created = m.Attributes()
		return nil
	})
	w.WriteHeader(http.StatusCreated)
	return created, nil
}

func getTodo(ctx context.Context) (record.Record, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var result record.Record
	err = onLoop(s, func() error {
		m, err := currentTodo(ctx, l)
		if err != nil {
			return err
		}
		result = m.Attributes()
		return nil
	})
	return result, err
}

// saveTodo runs change on the loop against the todo in the url, waits for the
// save it returns and answers with the stored attributes.
func saveTodo(ctx context.Context, change func(m *model.Model) <-chan error) (record.Record, error) {
	s, l, err := currentList(ctx)
	if err != nil {
		return nil, err
	}

	var m *model.Model
	var result <-chan error
	err = onLoop(s, func() error {
		found, err := currentTodo(ctx, l)
		if err != nil {
			return err
		}
		m = found
		result = change(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = todos.Wait(ctx, result)
	if err != nil {
		return nil, err
	}

	var saved record.Record
	onLoop(s, func() error {
		saved = m.Attributes()
		return nil
	})
	return saved, nil
}

func patchTodo(ctx context.Context, input record.Record) (record.Record, error) {
	if v, ok := input.Get("title"); ok {
		title, _ := v.(string)
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, todos.ErrEmptyTitle
		}
		input = input.Clone()
		input.Put("title", title)
	}

	return saveTodo(ctx, func(m *model.Model) <-chan error {
		return m.Save(ctx, input)
	})
}

func toggleTodo(ctx context.Context) (record.Record, error) {
	return saveTodo(ctx, func(m *model.Model) <-chan error {
		return todos.Toggle(ctx, m)
	})
}

func deleteTodo(ctx context.Context) error {
	_, err := saveTodo(ctx, func(m *model.Model) <-chan error {
		return m.Destroy(ctx)
	})
	return err
}
