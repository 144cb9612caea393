package models

import (
	"fmt"
	"strings"
)

// rank orders the non-terminal states; FAILED sits outside the chain.
var rank = map[DeliveryStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is a known status
func (s DeliveryStatus) Valid() bool {
	_, ok := rank[s]
	return ok || s == StatusFailed
}

// IsTerminal reports whether no further transition is allowed
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusFailed
}

// ParseDeliveryStatus accepts provider spellings ("delivered", "Read", ...)
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	s := DeliveryStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown delivery status: %q", raw)
	}
	return s, nil
}

// ParseDirection accepts "inbound"/"outbound" in any case
func ParseDirection(raw string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(raw)))
	if d != DirectionInbound && d != DirectionOutbound {
		return "", fmt.Errorf("unknown direction: %q", raw)
	}
	return d, nil
}

// CanTransition evaluates the status lattice SENT < DELIVERED < READ with
// FAILED absorbing. A nil current status (inbound rows) never transitions.
func CanTransition(current *DeliveryStatus, next DeliveryStatus) bool {
	if current == nil || !next.Valid() {
		return false
	}
	if current.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return rank[next] > rank[*current]
}

// ApplyOutcome reports what a status event did to the ledger
type ApplyOutcome string

const (
	OutcomeApplied  ApplyOutcome = "applied"
	OutcomeStale    ApplyOutcome = "stale"
	OutcomeNotFound ApplyOutcome = "not_found"
)
