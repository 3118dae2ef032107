// Package dedup provides a bounded, insertion-ordered set of recently seen
// item identifiers. It is the memory that keeps a poller from re-yielding
// items across cursor rebuilds.
package dedup

import "container/list"

// Window is a set with a maximum size that evicts the oldest entries when
// necessary. Touching an existing entry (Add or Contains) moves it to the
// recent end, so identifiers that keep reappearing are not evicted while
// still live upstream. Not safe for concurrent use; each poller owns one.
type Window struct {
	cap      int
	order    *list.List // front = oldest, back = most recent
	elements map[string]*list.Element
}

// NewWindow creates a Window holding at most capacity identifiers.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}

	return &Window{
		cap:      capacity,
		order:    list.New(),
		elements: make(map[string]*list.Element, capacity),
	}
}

// Add inserts id, evicting the oldest entry if the window is full.
// Returns true if id was newly added, false if it was already present.
func (w *Window) Add(id string) bool {
	if el, ok := w.elements[id]; ok {
		w.order.MoveToBack(el)

		return false
	}

	w.elements[id] = w.order.PushBack(id)

	if w.order.Len() > w.cap {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.elements, oldest.Value.(string))
	}

	return true
}

// Contains reports whether id is in the window, refreshing its position.
func (w *Window) Contains(id string) bool {
	el, ok := w.elements[id]
	if ok {
		w.order.MoveToBack(el)
	}

	return ok
}

// Remove deletes id from the window if present.
func (w *Window) Remove(id string) {
	if el, ok := w.elements[id]; ok {
		w.order.Remove(el)
		delete(w.elements, id)
	}
}

// Newest returns up to n identifiers, most recently touched first.
func (w *Window) Newest(n int) []string {
	if n > w.order.Len() {
		n = w.order.Len()
	}

	ids := make([]string, 0, n)

	for el := w.order.Back(); el != nil && len(ids) < n; el = el.Prev() {
		ids = append(ids, el.Value.(string))
	}

	return ids
}

// Len returns the number of identifiers currently held.
func (w *Window) Len() int {
	return w.order.Len()
}

// Cap returns the maximum number of identifiers the window holds.
func (w *Window) Cap() int {
	return w.cap
}
