// Package collection keeps an ordered, deduplicated group of models that share
// one adapter.
//
// Events:
//
//	add     (model, collection)
//	remove  (model, collection)
//	reset   (collection)
//	sort    (collection)
//	sync    (collection) after a fetch
//	error   (collection, err) when a fetch fails
//
// Every event of a member is triggered again on the collection with the same
// arguments, so the originating model comes first.
package collection

import (
	"context"
	"fmt"
	"math"

	"github.com/SierraSoftworks/connor"
	"github.com/google/btree"
	"github.com/tidwall/gjson"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/events"
	"github.com/fulldump/todostore/loop"
	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
)

const DefaultOrderAttribute = "order"

type Options struct {
	Adapter    adapter.Adapter
	Scheduler  loop.Scheduler // loop.Inline when nil
	Comparator Comparator
	// Defaults is evaluated every time a model is built.
	Defaults       func(c *Collection) record.Record
	OrderAttribute string
}

type entry struct {
	model  *model.Model
	id     string
	key    any
	attrs  record.Record // what a Func comparator last sorted this entry by
	seq    uint64
	handle events.Handle
}

type Collection struct {
	events.Hub

	options Options
	tree    *btree.BTreeG[*entry]
	byCID   map[string]*entry
	byID    map[string]*entry
	seq     uint64
	cache   []*model.Model
}

func New(options Options) *Collection {
	if options.Scheduler == nil {
		options.Scheduler = loop.Inline{}
	}
	if options.OrderAttribute == "" {
		options.OrderAttribute = DefaultOrderAttribute
	}
	c := &Collection{
		options: options,
		byCID:   map[string]*entry{},
		byID:    map[string]*entry{},
	}
	c.tree = c.newTree()
	return c
}

func (c *Collection) newTree() *btree.BTreeG[*entry] {
	return btree.NewG(32, c.options.Comparator.less)
}

func (c *Collection) Adapter() adapter.Adapter {
	return c.options.Adapter
}

func (c *Collection) modelOptions() model.Options {
	return model.Options{
		Adapter:   c.options.Adapter,
		Scheduler: c.options.Scheduler,
	}
}

// Build makes a model with the collection defaults and adapter without adding it.
func (c *Collection) Build(attrs record.Record) *model.Model {
	options := c.modelOptions()
	if c.options.Defaults != nil {
		options.Defaults = c.options.Defaults(c)
	}
	return model.New(attrs, options)
}

// Add inserts m in order and emits add. It returns false, doing nothing, when
// m is destroyed or a member with the same identity exists.
func (c *Collection) Add(m *model.Model) bool {
	if m == nil || m.State() == model.Destroyed {
		return false
	}
	if c.Contains(m) {
		return false
	}

	c.insert(m)
	c.Trigger("add", m, c)
	return true
}

// AddAttributes builds and adds a model. On duplicate identity the existing
// member is returned with false.
func (c *Collection) AddAttributes(attrs record.Record) (*model.Model, bool) {
	m := c.Build(attrs)
	if c.Add(m) {
		return m, true
	}
	return c.Get(m.ID()), false
}

// Create adds a new model and saves it. The model stays in the collection
// if saving fails.
func (c *Collection) Create(ctx context.Context, attrs record.Record) (*model.Model, <-chan error) {
	m, added := c.AddAttributes(attrs)
	if !added {
		result := make(chan error, 1)
		close(result)
		return m, result
	}
	return m, m.Save(ctx, nil)
}

func (c *Collection) Contains(m *model.Model) bool {
	if _, exists := c.byCID[m.CID()]; exists {
		return true
	}
	id := m.ID()
	if id == "" {
		return false
	}
	_, exists := c.byID[id]
	return exists
}

func (c *Collection) insert(m *model.Model) *entry {
	c.seq++
	e := &entry{
		model: m,
		id:    m.ID(),
		key:   c.options.Comparator.key(m),
		seq:   c.seq,
	}
	if c.options.Comparator.Func != nil {
		e.attrs = m.Attributes()
	}
	e.handle = m.On(events.All, func(event events.Event) {
		c.onMemberEvent(e, event)
	}, c)

	c.byCID[m.CID()] = e
	if e.id != "" {
		c.byID[e.id] = e
	}
	c.tree.ReplaceOrInsert(e)
	c.cache = nil
	return e
}

func (c *Collection) detach(e *entry) {
	if _, found := c.tree.Delete(e); !found {
		// the tree was ordered with stale values, rebuild it without e
		delete(c.byCID, e.model.CID())
		c.rebuild()
	}
	delete(c.byCID, e.model.CID())
	if e.id != "" && c.byID[e.id] == e {
		delete(c.byID, e.id)
	}
	e.model.Off("", e.handle)
	c.cache = nil
}

// Remove takes m out of the collection and emits remove.
func (c *Collection) Remove(m *model.Model) bool {
	if m == nil {
		return false
	}
	e, exists := c.byCID[m.CID()]
	if !exists {
		return false
	}

	c.detach(e)
	c.Trigger("remove", m, c)
	return true
}

func (c *Collection) onMemberEvent(e *entry, event events.Event) {
	if model.FromEvent(event) != e.model {
		// bubbled from somewhere else, not ours to interpret
		c.Trigger(event.Name, event.Args...)
		return
	}

	if event.Name == "destroy" {
		c.Remove(e.model)
	} else {
		// the first event of a mutation already sees the model fully updated
		c.settle(e)
	}

	c.Trigger(event.Name, event.Args...)
}

// settle brings the indexes and the order in line with the current
// attributes of e. It does nothing when they are already up to date.
func (c *Collection) settle(e *entry) {
	if e.id != e.model.ID() {
		c.reindex(e)
	}

	comparator := c.options.Comparator
	switch {
	case comparator.Func != nil:
		current := e.model.Attributes()
		if record.Equal(e.attrs, current) {
			return
		}
		e.attrs = current
		c.rebuild()
	case comparator.Attribute != "":
		if record.Equal(e.key, comparator.key(e.model)) {
			return
		}
		c.reposition(e)
	}
}

func (c *Collection) reindex(e *entry) {
	if e.id != "" && c.byID[e.id] == e {
		delete(c.byID, e.id)
	}
	e.id = e.model.ID()
	if e.id == "" {
		return
	}
	if _, taken := c.byID[e.id]; !taken {
		c.byID[e.id] = e
	}
}

func (c *Collection) reposition(e *entry) {
	c.tree.Delete(e)
	e.key = c.options.Comparator.key(e.model)
	c.tree.ReplaceOrInsert(e)
	c.cache = nil
}

func (c *Collection) rebuild() {
	tree := c.newTree()
	for _, e := range c.byCID {
		e.key = c.options.Comparator.key(e.model)
		tree.ReplaceOrInsert(e)
	}
	c.tree = tree
	c.cache = nil
}

// Sort forces a full re-sort and emits sort.
func (c *Collection) Sort() {
	c.rebuild()
	c.Trigger("sort", c)
}

// Reset replaces every member with models restored from records and emits a
// single reset. Members being replaced emit nothing.
func (c *Collection) Reset(records []record.Record) {
	for _, e := range c.byCID {
		e.model.Off("", e.handle)
	}
	c.byCID = map[string]*entry{}
	c.byID = map[string]*entry{}
	c.tree = c.newTree()
	c.cache = nil

	for _, r := range records {
		m := model.Restore(r, c.modelOptions())
		if c.Contains(m) {
			continue
		}
		c.insert(m)
	}

	c.Trigger("reset", c)
}

// Fetch loads every record of the adapter and resets the collection with
// them. Failures emit error on the collection.
func (c *Collection) Fetch(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	a := c.options.Adapter
	if a == nil {
		result <- adapter.ErrNoAdapter
		close(result)
		c.Trigger("error", c, adapter.ErrNoAdapter)
		return result
	}

	var records []record.Record
	c.options.Scheduler.Go(func() (err error) {
		records, err = a.ReadAll(ctx)
		return
	}, func(err error) {
		defer close(result)
		result <- err
		if err != nil {
			c.Trigger("error", c, err)
			return
		}
		c.Reset(records)
		c.Trigger("sync", c)
	})

	return result
}

func (c *Collection) Len() int {
	return c.tree.Len()
}

func (c *Collection) models() []*model.Model {
	if c.cache == nil {
		c.cache = make([]*model.Model, 0, c.tree.Len())
		c.tree.Ascend(func(e *entry) bool {
			c.cache = append(c.cache, e.model)
			return true
		})
	}
	return c.cache
}

// Models returns the members in order; the slice is a fresh copy.
func (c *Collection) Models() []*model.Model {
	list := c.models()
	result := make([]*model.Model, len(list))
	copy(result, list)
	return result
}

func (c *Collection) At(i int) *model.Model {
	list := c.models()
	if i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

func (c *Collection) First() *model.Model {
	return c.At(0)
}

func (c *Collection) Last() *model.Model {
	return c.At(c.Len() - 1)
}

func (c *Collection) Get(id string) *model.Model {
	if e, exists := c.byID[id]; exists {
		return e.model
	}
	return nil
}

func (c *Collection) GetByCID(cid string) *model.Model {
	if e, exists := c.byCID[cid]; exists {
		return e.model
	}
	return nil
}

// Each iterates a snapshot, so f may add or remove members.
func (c *Collection) Each(f func(i int, m *model.Model)) {
	for i, m := range c.Models() {
		f(i, m)
	}
}

// Filter returns a fresh slice with the members matching pred.
func (c *Collection) Filter(pred func(m *model.Model) bool) []*model.Model {
	result := []*model.Model{}
	for _, m := range c.models() {
		if pred(m) {
			result = append(result, m)
		}
	}
	return result
}

// Where returns a fresh slice with the members matching a mongo style filter,
// for example {"done": true} or {"order": {"$gt": 3}}.
func (c *Collection) Where(filter map[string]any) ([]*model.Model, error) {
	normalized, _ := record.Normalize(filter).(map[string]any)

	result := []*model.Model{}
	for _, m := range c.models() {
		data, _ := record.Normalize(m.Attributes()).(map[string]any)
		match, err := connor.Match(normalized, data)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		if match {
			result = append(result, m)
		}
	}
	return result, nil
}

// Pluck collects the value at path (gjson syntax, "title" or "tags.0") for every member.
func (c *Collection) Pluck(path string) []any {
	result := make([]any, 0, c.Len())
	for _, m := range c.models() {
		b, err := m.MarshalJSON()
		if err != nil {
			result = append(result, nil)
			continue
		}
		result = append(result, gjson.GetBytes(b, path).Value())
	}
	return result
}

// NextOrder is 1 for an empty collection, otherwise the greatest numeric
// sort key plus one. The sort key is the comparator attribute, or
// OrderAttribute when the comparator has none. The result is an int when it
// is integral and a float64 otherwise, so [1.5] gives 2.5.
func (c *Collection) NextOrder() any {
	attr := c.options.Comparator.Attribute
	if attr == "" {
		attr = c.options.OrderAttribute
	}

	found := false
	highest := math.Inf(-1)
	for _, e := range c.byCID {
		n, ok := record.Number(e.model.Get(attr))
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		found = true
		if n > highest {
			highest = n
		}
	}
	if !found {
		return 1
	}

	next := highest + 1
	if next == math.Trunc(next) && math.Abs(next) < 1<<53 {
		return int(next)
	}
	return next
}
