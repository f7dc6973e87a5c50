package events

type listening struct {
	emitter Emitter
	name    string
	handle  Handle
}

// Listener keeps track of the callbacks an object registers on other emitters
// so all of them can be released with Teardown when the object goes away.
// Embed it in views, services or anything that subscribes to models.
type Listener struct {
	listenings []listening
}

func (l *Listener) ListenTo(other Emitter, name string, callback Callback) Handle {
	handle := other.On(name, callback, l)
	l.listenings = append(l.listenings, listening{
		emitter: other,
		name:    name,
		handle:  handle,
	})
	return handle
}

type onceEmitter interface {
	Once(name string, callback Callback, context any) Handle
}

// ListenToOnce falls back to ListenTo when other has no Once.
func (l *Listener) ListenToOnce(other Emitter, name string, callback Callback) Handle {
	o, ok := other.(onceEmitter)
	if !ok {
		return l.ListenTo(other, name, callback)
	}
	handle := o.Once(name, callback, l)
	l.listenings = append(l.listenings, listening{
		emitter: other,
		name:    name,
		handle:  handle,
	})
	return handle
}

// StopListening releases the registrations made on other for name. A nil
// other matches every emitter and an empty name every event.
func (l *Listener) StopListening(other Emitter, name string) {
	kept := l.listenings[:0]
	for _, item := range l.listenings {
		if (other == nil || item.emitter == other) && (name == "" || item.name == name) {
			item.emitter.Off(item.name, item.handle)
			continue
		}
		kept = append(kept, item)
	}
	l.listenings = kept
}

// Listening tells how many registrations are still held.
func (l *Listener) Listening() int {
	return len(l.listenings)
}

// Teardown releases everything; call it from the owner's destroy path.
func (l *Listener) Teardown() {
	l.StopListening(nil, "")
}
