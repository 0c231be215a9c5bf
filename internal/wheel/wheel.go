// Package wheel provides a bounded-step hashed timing wheel used by the
// reactor to implement per-operation deadlines in amortised O(1) insert and
// O(k) tick, where k is the number of entries visited on that tick.
//
// Unlike a typical timer wheel, Wheel is not self-driven: it has no
// goroutine, no ticker and no internal lock. It is a plain data structure
// stepped explicitly by the caller's Tick/TickN, and is safe for concurrent
// use only to the extent the caller serialises access to it (the reactor
// does this under its own registry guard).
package wheel

// Key identifies a scheduled deadline. The wheel treats it as an opaque,
// comparable value; reactor uses its event key type here.
type Key interface{}

// Wheel is a hashed timing wheel with N slots ticked at a fixed, externally
// driven rate. A deadline of d ticks is inserted at slot (current+d) mod N
// with round-counter (d-1)/N, so it fires after exactly d ticks when d <= N,
// and within [d, d+N) ticks otherwise.
type Wheel struct {
	slots   []map[Key]int // slots[i][key] = remaining laps before firing
	index   map[Key]int   // key -> slot index, for O(1) removal
	n       int
	current int
}

// New creates a wheel with n slots. n must be positive.
func New(n int) *Wheel {
	if n <= 0 {
		n = 1
	}
	slots := make([]map[Key]int, n)
	for i := range slots {
		slots[i] = make(map[Key]int)
	}
	return &Wheel{slots: slots, index: make(map[Key]int), n: n}
}

// Add inserts key so that it expires after deltaTicks ticks from now.
// deltaTicks is clamped to a minimum of one tick: a deadline can never fire
// on the same tick it was scheduled. Re-adding an already-scheduled key
// replaces its previous deadline.
func (w *Wheel) Add(deltaTicks int, key Key) {
	if deltaTicks < 1 {
		deltaTicks = 1
	}
	w.Remove(key)
	round := (deltaTicks - 1) / w.n
	idx := (w.current + deltaTicks) % w.n
	w.slots[idx][key] = round
	w.index[key] = idx
}

// Remove cancels a pending deadline for key. It reports whether key was
// found.
func (w *Wheel) Remove(key Key) bool {
	idx, ok := w.index[key]
	if !ok {
		return false
	}
	delete(w.slots[idx], key)
	delete(w.index, key)
	return true
}

// Tick advances the wheel by one tick and returns the keys whose deadline
// expired on this tick, in no particular order. A nil or empty slice means
// nothing expired.
func (w *Wheel) Tick() []Key {
	w.current = (w.current + 1) % w.n
	slot := w.slots[w.current]
	if len(slot) == 0 {
		return nil
	}
	var expired []Key
	for key, round := range slot {
		if round > 0 {
			slot[key] = round - 1
			continue
		}
		delete(slot, key)
		delete(w.index, key)
		expired = append(expired, key)
	}
	return expired
}

// TickN advances the wheel by n ticks (n >= 0) and returns the concatenation
// of every tick's expired keys, in tick order.
func (w *Wheel) TickN(n int) []Key {
	if n <= 0 {
		return nil
	}
	var all []Key
	for i := 0; i < n; i++ {
		all = append(all, w.Tick()...)
	}
	return all
}

// Len returns the number of deadlines currently scheduled.
func (w *Wheel) Len() int {
	return len(w.index)
}

// NumSlots returns the number of slots the wheel was created with.
func (w *Wheel) NumSlots() int {
	return w.n
}
