// Package engine tracks whether a backend (model, binary, network endpoint)
// can be used. Availability is decided once at construction and can only be
// downgraded afterwards; a restart is the only way back up.
package engine

import (
	"sync"
)

type Availability struct {
	name string

	mu        sync.RWMutex
	available bool
	reason    string
}

func NewAvailability(name string, available bool, reason string) *Availability {
	return &Availability{name: name, available: available, reason: reason}
}

func (a *Availability) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

func (a *Availability) Available() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

func (a *Availability) Reason() string {
	if a == nil {
		return "not configured"
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reason
}

// Downgrade marks the engine unusable. It reports whether this call changed
// the state.
func (a *Availability) Downgrade(reason string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.available {
		return false
	}
	a.available = false
	a.reason = reason
	return true
}

// Status is the JSON view served on the health endpoint.
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func (a *Availability) Status() Status {
	return Status{Name: a.Name(), Available: a.Available(), Reason: a.Reason()}
}
