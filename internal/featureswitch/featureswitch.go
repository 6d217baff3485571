// Package featureswitch controls which (event type, domain) pairs the
// dispatcher processes. Disabled events are acknowledged and dropped.
package featureswitch

import "sync/atomic"

type key struct {
	eventType string
	domain    string
}

// Switches is an explicit on/off set keyed by (event type, domain).
// Events default to enabled; only listed pairs are disabled. The set is
// replaceable at runtime without restarting consumers.
type Switches struct {
	disabled atomic.Pointer[map[key]struct{}]
}

// New builds a switch set from "eventType:domain" pairs to disable.
func New(disabledPairs map[string][]string) *Switches {
	s := &Switches{}
	s.Replace(disabledPairs)
	return s
}

// Replace swaps in a new disabled set. Keys are event types, values the
// domains for which that event type is switched off.
func (s *Switches) Replace(disabledPairs map[string][]string) {
	m := make(map[key]struct{})
	for eventType, domains := range disabledPairs {
		for _, d := range domains {
			m[key{eventType: eventType, domain: d}] = struct{}{}
		}
	}
	s.disabled.Store(&m)
}

// Enabled reports whether the dispatcher should process eventType for
// the given domain.
func (s *Switches) Enabled(eventType, domain string) bool {
	m := s.disabled.Load()
	if m == nil {
		return true
	}
	_, off := (*m)[key{eventType: eventType, domain: domain}]
	return !off
}
