// Package events defines the control loop events emitted on the event bus.
//
// Available event types:
//   - StateEvent: the controller entered a new cycle state
//   - CycleEvent: a cycle finished, successfully or with a fallback
package events
