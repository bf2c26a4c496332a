package sync

import (
	gosync "sync"

	"github.com/fentz26/morningtrio/internal/models"
)

// Event describes a change to the local task set.
type Event struct {
	// Op names what happened: a task operation ("add", "toggle", ...),
	// "pull", "claim", "discard", or "rollback".
	Op      string
	Changes []models.Change
}

// Hub fans local-change notifications out to subscribers.
type Hub struct {
	mu   gosync.Mutex
	next int
	subs map[int]func(Event)
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once gosync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish calls every subscriber with ev. Subscribers run on the caller's
// goroutine, outside the hub lock.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// counter tracks in-flight background work and lets callers wait for it
// to reach zero. Unlike sync.WaitGroup it may be waited on while new work
// is being added.
type counter struct {
	mu   gosync.Mutex
	cond *gosync.Cond
	n    int
}

func newCounter() *counter {
	c := &counter{}
	c.cond = gosync.NewCond(&c.mu)
	return c
}

func (c *counter) add() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) done() {
	c.mu.Lock()
	c.n--
	if c.n <= 0 {
		c.n = 0
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

func (c *counter) wait() {
	c.mu.Lock()
	for c.n > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
