package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/database"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/todos"
)

type entry struct {
	list  *todos.List
	ready chan struct{}
	err   error
}

type Service struct {
	db    *database.Database
	loop  *loop.Loop
	mutex sync.Mutex
	lists map[string]*entry
}

func NewService(db *database.Database) *Service {
	return &Service{
		db:    db,
		loop:  loop.New(),
		lists: map[string]*entry{},
	}
}

func (s *Service) Loop() *loop.Loop {
	return s.loop
}

// Run drives the loop until Stop or ctx is done.
func (s *Service) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

func (s *Service) Stop() {
	s.loop.Stop()
}

func (s *Service) Records(namespace string) (adapter.Adapter, error) {
	return s.db.Open(namespace)
}

func (s *Service) GetList(ctx context.Context, name string) (*todos.List, error) {

	s.mutex.Lock()
	e, exists := s.lists[name]
	if !exists {
		e = &entry{ready: make(chan struct{})}
		s.lists[name] = e
	}
	s.mutex.Unlock()

	if !exists {
		e.list, e.err = s.load(ctx, name)
		if e.err != nil {
			s.mutex.Lock()
			delete(s.lists, name)
			s.mutex.Unlock()
		}
		close(e.ready)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.list, e.err
}

func (s *Service) load(ctx context.Context, name string) (*todos.List, error) {
	a, err := s.db.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open namespace: %w", err)
	}

	// the fetch outlives a cancelled request, other callers wait for it
	ctx = context.WithoutCancel(ctx)

	var l *todos.List
	var result <-chan error
	err = s.loop.Do(func() {
		l = todos.New(name, a, s.loop)
		result = l.Fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	err = <-result
	if err != nil {
		return nil, fmt.Errorf("fetch '%s': %w", name, err)
	}

	glog.V(1).Infof("list '%s' loaded", name)
	return l, nil
}

// ListLists returns every stored namespace, any of them can be read as a list.
func (s *Service) ListLists() []string {
	return s.db.Namespaces()
}

func (s *Service) DeleteList(ctx context.Context, name string) error {
	exists := false
	for _, n := range s.db.Namespaces() {
		if n == name {
			exists = true
			break
		}
	}
	if !exists {
		return ErrorListNotFound
	}

	s.mutex.Lock()
	e, loaded := s.lists[name]
	delete(s.lists, name)
	s.mutex.Unlock()

	if loaded {
		<-e.ready
		if e.list != nil {
			s.loop.Do(func() {
				e.list.Reset(nil)
			})
		}
	}

	return s.db.Drop(ctx, name)
}
