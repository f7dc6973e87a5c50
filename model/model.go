// Package model implements observable records with change tracking and a
// save/destroy lifecycle delegated to an adapter.
//
// Events (first argument is always the model):
//
//	change:<key>  (model, value)
//	change        (model)
//	sync          (model)
//	error         (model, err)
//	destroy       (model)
//
// A Model is confined to one loop, see package loop.
package model

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/events"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/record"
)

var (
	ErrDestroyed         = errors.New("model destroyed")
	ErrIdentityImmutable = errors.New("identity is immutable once set")
)

type State int

const (
	Unsaved State = iota
	Saved
	Destroyed
)

func (s State) String() string {
	switch s {
	case Unsaved:
		return "unsaved"
	case Saved:
		return "saved"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

type Options struct {
	Adapter   adapter.Adapter
	Scheduler loop.Scheduler // loop.Inline when nil
	Defaults  record.Record
}

type Model struct {
	events.Hub

	cid        string
	state      State
	attributes record.Record
	previous   record.Record
	changed    record.Record
	adapter    adapter.Adapter
	scheduler  loop.Scheduler
}

// New builds an unsaved model; attrs are put on top of the defaults.
func New(attrs record.Record, options Options) *Model {
	m := &Model{
		cid:       ulid.Make().String(),
		state:     Unsaved,
		adapter:   options.Adapter,
		scheduler: options.Scheduler,
	}
	if m.scheduler == nil {
		m.scheduler = loop.Inline{}
	}
	m.attributes = options.Defaults.Merge(attrs)
	if m.attributes == nil {
		m.attributes = record.Record{}
	}
	m.previous = m.attributes.Clone()
	return m
}

// Restore builds a model for a record that already lives in the adapter.
func Restore(attrs record.Record, options Options) *Model {
	m := New(attrs, Options{Adapter: options.Adapter, Scheduler: options.Scheduler})
	m.state = Saved
	return m
}

// FromEvent returns the model an event originated from, nil if there is none.
func FromEvent(e events.Event) *Model {
	if len(e.Args) == 0 {
		return nil
	}
	m, _ := e.Args[0].(*Model)
	return m
}

func (m *Model) CID() string {
	return m.cid
}

func (m *Model) ID() string {
	return m.attributes.ID()
}

func (m *Model) State() State {
	return m.state
}

func (m *Model) IsNew() bool {
	return m.state == Unsaved
}

func (m *Model) Adapter() adapter.Adapter {
	return m.adapter
}

func (m *Model) Get(key string) any {
	v, _ := m.attributes.Get(key)
	return v
}

func (m *Model) Has(key string) bool {
	return m.attributes.Has(key)
}

// Attributes returns an ordered copy of the attributes.
func (m *Model) Attributes() record.Record {
	return m.attributes.Clone()
}

// ToMap returns a shallow copy of the attributes; changing it does not affect the model.
func (m *Model) ToMap() map[string]any {
	return m.attributes.Map()
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return m.attributes.MarshalJSON()
}

func (m *Model) Set(key string, value any) error {
	return m.SetMany(record.Record{{Key: key, Value: value}})
}

// SetMany applies attrs as one mutation: change:<key> for every attribute
// that actually differs and then a single change. Nothing is emitted when no
// value changes.
func (m *Model) SetMany(attrs record.Record) error {
	if m.state == Destroyed {
		return ErrDestroyed
	}
	if err := m.checkIdentity(attrs); err != nil {
		return err
	}

	identified := m.ID() != ""
	m.previous = m.attributes.Clone()
	m.changed = nil

	for _, f := range attrs {
		if identified && f.Key == record.IDKey {
			continue
		}
		current, exists := m.attributes.Get(f.Key)
		if exists && record.Equal(current, f.Value) {
			continue
		}
		m.attributes.Put(f.Key, f.Value)
		m.changed.Put(f.Key, f.Value)
	}

	m.notify()
	return nil
}

func (m *Model) Unset(key string) error {
	if m.state == Destroyed {
		return ErrDestroyed
	}
	if key == record.IDKey && m.ID() != "" {
		return ErrIdentityImmutable
	}

	m.previous = m.attributes.Clone()
	m.changed = nil

	if m.attributes.Delete(key) {
		m.changed.Put(key, nil)
	}

	m.notify()
	return nil
}

func (m *Model) checkIdentity(attrs record.Record) error {
	current := m.ID()
	if current == "" {
		return nil
	}
	v, ok := attrs.Get(record.IDKey)
	if !ok {
		return nil
	}
	if record.FormatID(v) != current {
		return ErrIdentityImmutable
	}
	return nil
}

func (m *Model) notify() {
	if len(m.changed) == 0 {
		return
	}
	changed := m.changed.Clone()
	for _, f := range changed {
		m.Trigger("change:"+f.Key, m, f.Value)
	}
	m.Trigger("change", m)
}

// Previous returns the value key had before the last mutation.
func (m *Model) Previous(key string) (any, bool) {
	return m.previous.Get(key)
}

func (m *Model) PreviousAttributes() record.Record {
	return m.previous.Clone()
}

// ChangedAttributes returns the attributes modified by the last mutation,
// nil when it changed nothing.
func (m *Model) ChangedAttributes() record.Record {
	return m.changed.Clone()
}

// HasChanged tells if key was modified by the last mutation; with "" it
// tells if anything was.
func (m *Model) HasChanged(key string) bool {
	if key == "" {
		return len(m.changed) > 0
	}
	return m.changed.Has(key)
}

func resolved(err error) <-chan error {
	result := make(chan error, 1)
	result <- err
	close(result)
	return result
}

func (m *Model) fail(err error) <-chan error {
	if m.state != Destroyed {
		m.Trigger("error", m, err)
	}
	return resolved(err)
}

// Save applies attrs (may be nil) and persists the model: create when it is
// unsaved, update otherwise. The change stays applied even if the adapter
// fails. The outcome is emitted as sync or error and sent to the returned
// channel, which is closed afterwards.
//
// Overlapping saves are not serialized, the last one to complete decides
// what is stored. A save completing after Destroy still applies its outcome:
// on success the model is Saved again, so Destroy can delete the record the
// late write left behind.
func (m *Model) Save(ctx context.Context, attrs record.Record) <-chan error {
	if m.state == Destroyed {
		return resolved(ErrDestroyed)
	}
	if len(attrs) > 0 {
		err := m.SetMany(attrs)
		if err != nil {
			return m.fail(err)
		}
	}
	if m.adapter == nil {
		return m.fail(adapter.ErrNoAdapter)
	}

	creating := m.state == Unsaved
	if creating && m.ID() == "" {
		// overlapping creates must land on the same record
		m.SetMany(record.Record{{Key: record.IDKey, Value: uuid.NewString()}})
	}

	snapshot := m.attributes.Clone()
	a := m.adapter
	result := make(chan error, 1)

	m.scheduler.Go(func() error {
		if creating {
			_, err := a.Create(ctx, snapshot)
			return err
		}
		return a.Update(ctx, snapshot)
	}, func(err error) {
		defer close(result)
		result <- err

		if err != nil {
			m.Trigger("error", m, err)
			return
		}
		m.state = Saved
		m.Trigger("sync", m)
	})

	return result
}

// Destroy deletes the model. An unsaved model is destroyed right away, a
// saved one only once the adapter confirms; on failure it stays saved and
// Destroy can be retried. Destroy drops every listener of the model.
func (m *Model) Destroy(ctx context.Context) <-chan error {
	if m.state == Destroyed {
		return resolved(ErrDestroyed)
	}
	if m.state == Unsaved {
		m.destroyed()
		return resolved(nil)
	}
	if m.adapter == nil {
		return m.fail(adapter.ErrNoAdapter)
	}

	id := m.ID()
	a := m.adapter
	result := make(chan error, 1)

	m.scheduler.Go(func() error {
		return a.Delete(ctx, id)
	}, func(err error) {
		defer close(result)
		result <- err

		if err != nil {
			m.Trigger("error", m, err)
			return
		}
		if m.state != Destroyed {
			m.destroyed()
		}
	})

	return result
}

func (m *Model) destroyed() {
	m.state = Destroyed
	m.Trigger("destroy", m)
	m.Off("")
}
