package service

import (
	"context"
	"errors"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/todos"
)

var ErrorListNotFound = errors.New("list not found")

type Servicer interface {
	// GetList returns the list stored in namespace name, fetching it the first
	// time. The list lives on Loop(), touch it only from there.
	GetList(ctx context.Context, name string) (*todos.List, error)
	ListLists() []string
	DeleteList(ctx context.Context, name string) error
	Records(namespace string) (adapter.Adapter, error)
	Loop() *loop.Loop
}
