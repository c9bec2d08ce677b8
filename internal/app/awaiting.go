package app

import (
	"sync"
	"time"
)

// State is a user's input state: Idle or AwaitingShareCode.
type State interface {
	isState()
}

// Idle means no input is expected.
type Idle struct{}

// AwaitingShareCode means a bare code or an uploaded file is accepted until
// Deadline.
type AwaitingShareCode struct {
	Deadline time.Time
}

func (Idle) isState()              {}
func (AwaitingShareCode) isState() {}

// Awaiting tracks AwaitingShareCode per user. Expired entries are evicted
// when read and by Sweep.
type Awaiting struct {
	mu     sync.Mutex
	states map[string]AwaitingShareCode
	now    func() time.Time
}

func NewAwaiting(now func() time.Time) *Awaiting {
	if now == nil {
		now = time.Now
	}
	return &Awaiting{states: make(map[string]AwaitingShareCode), now: now}
}

// Start puts the user into AwaitingShareCode for ttl and returns the deadline.
func (a *Awaiting) Start(userID string, ttl time.Duration) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	deadline := a.now().Add(ttl)
	a.states[userID] = AwaitingShareCode{Deadline: deadline}
	return deadline
}

func (a *Awaiting) State(userID string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[userID]
	if !ok {
		return Idle{}
	}
	if !a.now().Before(st.Deadline) {
		delete(a.states, userID)
		return Idle{}
	}
	return st
}

// IsAwaiting is shorthand for State(userID) being AwaitingShareCode.
func (a *Awaiting) IsAwaiting(userID string) bool {
	_, ok := a.State(userID).(AwaitingShareCode)
	return ok
}

func (a *Awaiting) Clear(userID string) {
	a.mu.Lock()
	delete(a.states, userID)
	a.mu.Unlock()
}

// Sweep drops every entry expired at now and returns how many it dropped.
func (a *Awaiting) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for id, st := range a.states {
		if !now.Before(st.Deadline) {
			delete(a.states, id)
			n++
		}
	}
	return n
}
