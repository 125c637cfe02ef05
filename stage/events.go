package stage

import (
	"fmt"
	"time"

	"github.com/milk9111/stagesync/metrics"
)

type EventKind int

const (
	EventSelected EventKind = iota
	EventSelectionCleared
	EventMoved
	EventDragCompleted
	EventHoverChanged
	EventPhaseChanged
	EventTransitionStarted
	EventTransitionCompleted
	EventTransitionFailed
	EventRequestRejected
	EventSyncDrift
	EventPerformanceWarning
	EventCatalogReloaded
)

var eventNames = [...]string{
	EventSelected:            "entity-selected",
	EventSelectionCleared:    "selection-cleared",
	EventMoved:               "entity-moved",
	EventDragCompleted:       "drag-completed",
	EventHoverChanged:        "hover-changed",
	EventPhaseChanged:        "phase-changed",
	EventTransitionStarted:   "transition-started",
	EventTransitionCompleted: "transition-completed",
	EventTransitionFailed:    "transition-failed",
	EventRequestRejected:     "request-rejected",
	EventSyncDrift:           "sync-drift-detected",
	EventPerformanceWarning:  "performance-warning",
	EventCatalogReloaded:     "catalog-reloaded",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is the outward message surface of the stage. Only the fields that
// matter for a kind are set.
type Event struct {
	Kind     EventKind
	At       time.Duration
	EntityID string

	FromPhaseID string
	ToPhaseID   string

	X, Y float64

	Drift   time.Duration
	Warning metrics.Warning
	Err     error
}

func (e Event) String() string {
	switch e.Kind {
	case EventPhaseChanged, EventTransitionStarted, EventTransitionCompleted:
		return fmt.Sprintf("%s %s %s->%s @%s", e.Kind, e.EntityID, e.FromPhaseID, e.ToPhaseID, e.At)
	case EventMoved, EventDragCompleted:
		return fmt.Sprintf("%s %s (%.0f,%.0f)", e.Kind, e.EntityID, e.X, e.Y)
	case EventSyncDrift:
		return fmt.Sprintf("%s %s @%s", e.Kind, e.Drift, e.At)
	case EventPerformanceWarning:
		return fmt.Sprintf("%s %s", e.Kind, e.Warning)
	case EventTransitionFailed, EventRequestRejected, EventCatalogReloaded:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %v", e.Kind, e.EntityID, e.Err)
		}
	}
	if e.EntityID == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s %s", e.Kind, e.EntityID)
}
