package stage

import "docstage/internal/schema"

// ChangeKind describes what happened to a collection.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeEvent tells other views that a completion-affecting change happened.
// PartitionKey is nil for removals, which are keyed by record ID only.
type ChangeEvent struct {
	Collection   string
	PartitionKey schema.PartitionKey
	Kind         ChangeKind
	IDs          []string
}

// Notifier receives change events after they are committed.
type Notifier interface {
	Notify(ChangeEvent)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ChangeEvent)

func (f NotifierFunc) Notify(e ChangeEvent) { f(e) }

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Notify(ChangeEvent) {}
