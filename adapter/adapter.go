// Package adapter defines how collections and models reach their storage.
//
// An Adapter is scoped to one namespace. Every method is blocking and safe
// for concurrent use: callers run them off the event loop.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fulldump/todostore/record"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrClosed    = errors.New("adapter closed")
	ErrNoAdapter = errors.New("no adapter configured")
)

type Adapter interface {
	// Create stores r and returns its id. A supplied id is kept and replaces
	// any record with the same id; otherwise a new one is generated.
	Create(ctx context.Context, r record.Record) (string, error)
	Update(ctx context.Context, r record.Record) error
	Delete(ctx context.Context, id string) error
	// ReadAll returns every record in creation order.
	ReadAll(ctx context.Context) ([]record.Record, error)
}

// Getter is implemented by adapters that can read a single record without
// reading the whole namespace.
type Getter interface {
	Get(ctx context.Context, id string) (record.Record, error)
}

// Get reads the record id from a, falling back to a ReadAll scan when a is
// not a Getter.
func Get(ctx context.Context, a Adapter, id string) (record.Record, error) {
	if g, ok := a.(Getter); ok {
		return g.Get(ctx, id)
	}

	all, err := a.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, &Error{Op: "get", ID: id, Err: ErrNotFound}
}

// Closer is implemented by adapters holding resources.
type Closer interface {
	Close() error
}

type Error struct {
	Op        string
	Namespace string
	ID        string
	Err       error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s '%s': %s", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("%s '%s/%s': %s", e.Op, e.Namespace, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, namespace, id string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	return &Error{Op: op, Namespace: namespace, ID: id, Err: err}
}

// prepare returns a copy of r that carries an id, generating one if needed.
func prepare(r record.Record) (record.Record, string) {
	r = r.Clone()
	id := r.ID()
	if id == "" {
		id = uuid.NewString()
		r.Put(record.IDKey, id)
	}
	return r, id
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
