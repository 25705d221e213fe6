// Package events carries job lifecycle notifications from the job service to
// whoever cares about them, without coupling either side to the other.
//
// The primary components are:
// - JobEvent: one lifecycle step of a submitted job
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
