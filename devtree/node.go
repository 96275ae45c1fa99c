// Package devtree implements the immutable-by-replacement device tree store
// described in spec.md §3–§4.2: nodes indexed by path segment, carrying an
// optional subsystem classification, an optional openable device, and six
// broadcast channels that survive wholesale replacement of their ancestors.
package devtree

import "devicehub/kevent"

// DeviceKind distinguishes character from block devices.
type DeviceKind int

const (
	Char DeviceKind = iota
	Block
)

func (k DeviceKind) String() string {
	if k == Block {
		return "block"
	}
	return "char"
}

// DeviceID is the kernel's (major, minor) device number pair.
type DeviceID struct {
	Major uint32
	Minor uint32
}

// Device is an openable kernel device: its kind and its (major, minor) id.
type Device struct {
	Kind DeviceKind
	ID   DeviceID
}

// Node is one entry in the device tree. Node values are never mutated after
// creation except for their Children map, which is only ever replaced — not
// mutated in place — by the package-level Insert/Remove/Move functions, so
// that every caller holding an older *Node still sees a coherent,
// un-corrupted view of the subtree rooted there.
type Node struct {
	Subsystem string // "" means no classification
	Device    *Device // nil means not openable

	Children map[string]*Node

	OnRemove  *kevent.Broadcaster
	OnChange  *kevent.Broadcaster
	OnMove    *kevent.Broadcaster
	OnOnline  *kevent.Broadcaster
	OnOffline *kevent.Broadcaster
	OnOther   *kevent.Broadcaster
}

// New allocates a node with empty children and six fresh broadcast
// channels (spec.md §4.2 create(subsystem?, device?)).
func New(subsystem string, device *Device) *Node {
	return &Node{
		Subsystem: subsystem,
		Device:    device,
		Children:  make(map[string]*Node),
		OnRemove:  kevent.NewBroadcaster(),
		OnChange:  kevent.NewBroadcaster(),
		OnMove:    kevent.NewBroadcaster(),
		OnOnline:  kevent.NewBroadcaster(),
		OnOffline: kevent.NewBroadcaster(),
		OnOther:   kevent.NewBroadcaster(),
	}
}

// NewRoot allocates an empty root node: no subsystem, no device.
func NewRoot() *Node {
	return New("", nil)
}

// clone returns a shallow copy of n with its own Children map, so an
// in-progress structural update never mutates a map another goroutine might
// still be reading via an older root pointer. The six broadcasters are
// carried over by reference: ancestors that merely get a new Children map
// keep their identity as far as any subscriber is concerned.
func clone(n *Node) *Node {
	cp := *n
	cp.Children = make(map[string]*Node, len(n.Children))
	for k, v := range n.Children {
		cp.Children[k] = v
	}
	return &cp
}
