// Package events gives any object the ability to emit named events to
// registered callbacks.
//
// A Hub is not safe for concurrent use: emitters and listeners are expected to
// live on the same loop (see package loop).
package events

// All is the wildcard event: its callbacks receive every event triggered on the hub.
const All = "all"

type Event struct {
	Name string
	Args []any
}

type Callback func(e Event)

// Handle identifies one registration, it is the way to Off a single callback
// since functions are not comparable.
type Handle uint64

type registration struct {
	handle   Handle
	name     string
	callback Callback
	context  any
	once     bool
	removed  bool
}

// Emitter is implemented by everything that owns a Hub.
type Emitter interface {
	On(name string, callback Callback, context any) Handle
	Off(name string, handles ...Handle)
}

// Hub is usable as a zero value.
type Hub struct {
	last          Handle
	registrations map[string][]*registration
}

// On registers callback for the event name (or All). The same callback
// registered twice is invoked twice.
func (h *Hub) On(name string, callback Callback, context any) Handle {
	return h.add(name, callback, context, false)
}

// Once is like On but the registration is removed right before its first invocation.
func (h *Hub) Once(name string, callback Callback, context any) Handle {
	return h.add(name, callback, context, true)
}

func (h *Hub) add(name string, callback Callback, context any, once bool) Handle {
	if name == "" {
		panic("events: empty event name")
	}
	if callback == nil {
		panic("events: nil callback")
	}
	if h.registrations == nil {
		h.registrations = map[string][]*registration{}
	}

	h.last++
	h.registrations[name] = append(h.registrations[name], &registration{
		handle:   h.last,
		name:     name,
		callback: callback,
		context:  context,
		once:     once,
	})

	return h.last
}

// Off removes registrations. With no handles it removes every callback for
// name, or every callback at all when name is "". With handles it removes only
// those, restricted to name unless name is "".
func (h *Hub) Off(name string, handles ...Handle) {
	h.removeIf(func(r *registration) bool {
		if name != "" && r.name != name {
			return false
		}
		if len(handles) == 0 {
			return true
		}
		for _, handle := range handles {
			if r.handle == handle {
				return true
			}
		}
		return false
	})
}

// OffContext removes every registration made with context. Contexts are
// compared with ==, so they must be comparable values (pointers usually).
func (h *Hub) OffContext(context any) {
	if context == nil {
		return
	}
	h.removeIf(func(r *registration) bool {
		return r.context == context
	})
}

func (h *Hub) removeIf(match func(r *registration) bool) {
	for name, list := range h.registrations {
		kept := list[:0:0]
		for _, r := range list {
			if match(r) {
				r.removed = true
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(h.registrations, name)
			continue
		}
		h.registrations[name] = kept
	}
}

// Count returns how many callbacks are registered for name, or in total when name is "".
func (h *Hub) Count(name string) int {
	if name != "" {
		return len(h.registrations[name])
	}
	n := 0
	for _, list := range h.registrations {
		n += len(list)
	}
	return n
}

// Trigger synchronously calls the callbacks of name in registration order and
// then the All callbacks with the same event. Callbacks removed while the
// event is being delivered are skipped; callbacks added meanwhile wait for the
// next trigger. Panics raised by callbacks are not recovered.
func (h *Hub) Trigger(name string, args ...any) {
	if name == "" || len(h.registrations) == 0 {
		return
	}

	// both lists are taken before any callback runs
	var named []*registration
	if name != All {
		named = snapshot(h.registrations[name])
	}
	all := snapshot(h.registrations[All])

	e := Event{Name: name, Args: args}
	h.deliver(named, e)
	h.deliver(all, e)
}

func snapshot(list []*registration) []*registration {
	if len(list) == 0 {
		return nil
	}
	result := make([]*registration, len(list))
	copy(result, list)
	return result
}

func (h *Hub) deliver(list []*registration, e Event) {
	for _, r := range list {
		if r.removed {
			continue
		}
		if r.once {
			h.Off(r.name, r.handle)
		}
		r.callback(e)
	}
}
