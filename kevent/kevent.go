// Package kevent defines the kernel event shape consumed by the device
// manager (spec.md §4.5) and the broadcast primitive every tree node and
// subsystem entry uses to fan events out to independent subscribers.
package kevent

import "fmt"

// Action classifies a kernel uevent.
type Action int

const (
	Add Action = iota
	Remove
	Move
	Change
	Online
	Offline
	Other
)

// String renders the action the way it appears on the netlink wire.
func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Move:
		return "move"
	case Change:
		return "change"
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "other"
	}
}

// Event is a parsed kernel object event (uevent). DevPath carries the
// /devices or /module prefix exactly as delivered; details holds every
// KEY=VALUE pair from the uevent payload, including MAJOR, MINOR,
// DEVPATH_OLD and SUBSYSTEM when present.
type Event struct {
	Action  Action
	// Raw holds the original action token when Action == Other, e.g. a
	// vendor-specific action the kernel emits that this taxonomy doesn't
	// name.
	Raw     string
	DevPath string
	Details map[string]string
}

// Detail returns Details[key] and whether it was present.
func (e Event) Detail(key string) (string, bool) {
	v, ok := e.Details[key]
	return v, ok
}

func (e Event) String() string {
	action := e.Action.String()
	if e.Action == Other && e.Raw != "" {
		action = e.Raw
	}
	return fmt.Sprintf("%s %s", action, e.DevPath)
}
