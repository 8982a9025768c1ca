// Package state provides the injectable state container every store is built on.
//
// A Container owns one state value. It is only changed through Dispatch or
// Commit, and every change is published to subscribers as a snapshot. State
// values are copied by value, so reducers must replace slices and maps
// instead of mutating them in place.
package state

import (
	"sync"
)

// Status is the request lifecycle block shared by all stores. Each lane
// (list, detail, a mutation) is tracked separately: Loading is true while any
// lane has a request in flight, and Error is the most recent failure of a
// lane that has not been retried since.
type Status struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`

	lanes    map[string]laneStatus
	failures uint64
}

type laneStatus struct {
	inFlight int
	err      string
	failedAt uint64
}

// Start marks a request on lane as in flight. It clears the lane's previous
// error and the errors of every lane that has already settled.
func (s *Status) Start(lane string) {
	next := make(map[string]laneStatus, len(s.lanes)+1)
	for name, l := range s.lanes {
		if l.inFlight > 0 {
			next[name] = l
		}
	}
	l := next[lane]
	l.inFlight++
	l.err, l.failedAt = "", 0
	next[lane] = l
	s.replace(next)
}

// Done marks one request on lane finished. An empty message means success.
// Other lanes keep their state.
func (s *Status) Done(lane, message string) {
	l := s.lanes[lane]
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.err, l.failedAt = message, 0
	if message != "" {
		s.failures++
		l.failedAt = s.failures
	}
	s.set(lane, l)
}

// Fail records an error on lane for a request that never started, such as
// input rejected before any call.
func (s *Status) Fail(lane, message string) {
	l := s.lanes[lane]
	s.failures++
	l.err, l.failedAt = message, s.failures
	s.set(lane, l)
}

// Release ends one request on lane without recording an outcome. Commit
// calls it for tickets that lost to a newer one.
func (s *Status) Release(lane string) {
	l, ok := s.lanes[lane]
	if !ok || l.inFlight == 0 {
		return
	}
	l.inFlight--
	s.set(lane, l)
}

// LaneError returns the error recorded for lane, if any.
func (s Status) LaneError(lane string) string {
	return s.lanes[lane].err
}

// set and replace never mutate the current map: snapshots share it.
func (s *Status) set(lane string, l laneStatus) {
	next := make(map[string]laneStatus, len(s.lanes)+1)
	for name, cur := range s.lanes {
		next[name] = cur
	}
	if l.inFlight == 0 && l.err == "" {
		delete(next, lane)
	} else {
		next[lane] = l
	}
	s.replace(next)
}

func (s *Status) replace(lanes map[string]laneStatus) {
	s.lanes = lanes
	s.Loading = false
	s.Error = ""
	var latest uint64
	for _, l := range lanes {
		if l.inFlight > 0 {
			s.Loading = true
		}
		if l.err != "" && l.failedAt > latest {
			latest = l.failedAt
			s.Error = l.err
		}
	}
}

// releaser is implemented by states that embed Status.
type releaser interface {
	Release(lane string)
}

// Ticket identifies one fetch on a lane. Only the most recent ticket of a
// lane may publish.
type Ticket struct {
	lane string
	seq  uint64
}

// Container holds state S and notifies subscribers on every change.
type Container[S any] struct {
	mu     sync.RWMutex
	state  S
	seqs   map[string]uint64
	subs   map[int]func(S)
	nextID int
}

// New creates a container holding initial.
func New[S any](initial S) *Container[S] {
	return &Container[S]{
		state: initial,
		seqs:  make(map[string]uint64),
		subs:  make(map[int]func(S)),
	}
}

// Get returns a snapshot of the current state.
func (c *Container[S]) Get() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Dispatch applies reduce to the state and notifies subscribers.
func (c *Container[S]) Dispatch(reduce func(*S)) {
	c.mu.Lock()
	reduce(&c.state)
	snapshot := c.state
	subs := c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Begin starts a fetch on the default lane.
func (c *Container[S]) Begin() Ticket {
	return c.BeginLane("")
}

// BeginLane starts a fetch and returns its ticket. Any earlier ticket of the
// same lane becomes stale; other lanes are unaffected.
func (c *Container[S]) BeginLane(lane string) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqs[lane]++
	return Ticket{lane: lane, seq: c.seqs[lane]}
}

// Commit applies reduce only when t is still the latest ticket of its lane.
// It reports whether the result was published. A stale ticket still releases
// its lane's in-flight mark when S embeds Status.
func (c *Container[S]) Commit(t Ticket, reduce func(*S)) bool {
	c.mu.Lock()
	if t.seq != c.seqs[t.lane] {
		r, ok := any(&c.state).(releaser)
		if !ok {
			c.mu.Unlock()
			return false
		}
		r.Release(t.lane)
		snapshot := c.state
		subs := c.subscribers()
		c.mu.Unlock()
		for _, fn := range subs {
			fn(snapshot)
		}
		return false
	}
	reduce(&c.state)
	snapshot := c.state
	subs := c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return true
}

// Subscribe registers fn for every future change and returns a function that
// removes it.
func (c *Container[S]) Subscribe(fn func(S)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// subscribers must be called with mu held.
func (c *Container[S]) subscribers() []func(S) {
	out := make([]func(S), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
