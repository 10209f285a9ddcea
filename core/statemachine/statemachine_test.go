package statemachine

import (
	"testing"

	"incidentpulse/core/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusInvestigating, domain.StatusIdentified, true},
		{domain.StatusInvestigating, domain.StatusMonitoring, true},
		{domain.StatusInvestigating, domain.StatusResolved, true},
		{domain.StatusResolved, domain.StatusIdentified, false},
		{domain.StatusResolved, domain.StatusInvestigating, true},
		{domain.StatusIdentified, domain.StatusIdentified, false},
		{domain.Status("bogus"), domain.StatusResolved, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestResolvedAtShouldSet(t *testing.T) {
	if !ResolvedAtShouldSet(domain.StatusResolved, false) {
		t.Fatal("expected first resolution to stamp resolvedAt")
	}
	if ResolvedAtShouldSet(domain.StatusResolved, true) {
		t.Fatal("re-resolving must not overwrite resolvedAt")
	}
	if ResolvedAtShouldSet(domain.StatusMonitoring, false) {
		t.Fatal("non-resolved transitions must never stamp resolvedAt")
	}
}
