package scene

// Ticker is a per frame callback registry. Callbacks run in registration order.
// The zero value is ready to use.
type Ticker struct {
	nextID  int
	entries []tickEntry
}

type tickEntry struct {
	id int
	cb func(dt float32)
}

// RegisterFrameTick adds cb to the callbacks run on every [Ticker.Tick] and
// returns a function that removes it. Calling unregister more than once is a no-op.
func (t *Ticker) RegisterFrameTick(cb func(dt float32)) (unregister func()) {
	t.nextID++
	id := t.nextID
	t.entries = append(t.entries, tickEntry{id: id, cb: cb})
	return func() {
		for i, e := range t.entries {
			if e.id == id {
				// Copy so a Tick iterating the old slice is not disturbed.
				t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
				return
			}
		}
	}
}

// Tick runs all callbacks registered before the call with the frame delta in seconds.
func (t *Ticker) Tick(dt float32) {
	for _, e := range t.entries {
		e.cb(dt)
	}
}

// Len returns the number of registered callbacks.
func (t *Ticker) Len() int { return len(t.entries) }
