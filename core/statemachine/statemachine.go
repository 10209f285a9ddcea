// Package statemachine implements spec §4.3: the pure status
// transition table shared by both the REST and streaming write paths
// (spec §9 Open Question #1, decided in favor of enforcing it in
// both places).
package statemachine

import "incidentpulse/core/domain"

var allowed = map[domain.Status]map[domain.Status]bool{
	domain.StatusInvestigating: {
		domain.StatusIdentified: true,
		domain.StatusMonitoring: true,
		domain.StatusResolved:   true,
	},
	domain.StatusIdentified: {
		domain.StatusInvestigating: true,
		domain.StatusMonitoring:    true,
		domain.StatusResolved:      true,
	},
	domain.StatusMonitoring: {
		domain.StatusInvestigating: true,
		domain.StatusIdentified:    true,
		domain.StatusResolved:      true,
	},
	domain.StatusResolved: {
		domain.StatusInvestigating: true,
	},
}

// CanTransition reports whether from -> to is a legal transition.
// Same-state transitions are always rejected.
func CanTransition(from, to domain.Status) bool {
	if from == to {
		return false
	}
	next, ok := allowed[from]
	if !ok {
		return false
	}
	return next[to]
}

// ResolvedAtShouldSet reports whether resolvedAt should be stamped for
// a transition into "resolved": sticky on first resolution only, per
// spec §4.3 — re-opening and re-resolving must not overwrite it.
func ResolvedAtShouldSet(to domain.Status, alreadyResolvedOnce bool) bool {
	return to == domain.StatusResolved && !alreadyResolvedOnce
}
