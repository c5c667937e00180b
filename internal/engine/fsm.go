package engine

import (
	"fmt"

	"authserver/internal/store"
)

// Event drives an authorization session from one state to the next.
type Event string

const (
	EventAuthorize       Event = "authorize"
	EventLoginAccepted   Event = "login_accepted"
	EventConsentSkipped  Event = "consent_skipped"
	EventConsentAccepted Event = "consent_accepted"
)

type transitionKey struct {
	from  store.SessionState
	event Event
}

var transitions = map[transitionKey]store.SessionState{
	{store.StateCreated, EventAuthorize}:              store.StateLoginPending,
	{store.StateLoginPending, EventLoginAccepted}:     store.StateConsentPending,
	{store.StateLoginPending, EventConsentSkipped}:    store.StateFinalized,
	{store.StateConsentPending, EventConsentAccepted}: store.StateFinalized,
}

// Transition returns the next state or an error if ev is not allowed in from.
func Transition(from store.SessionState, ev Event) (store.SessionState, error) {
	if next, ok := transitions[transitionKey{from, ev}]; ok {
		return next, nil
	}
	return from, fmt.Errorf("session: %s not allowed in state %s", ev, from)
}
