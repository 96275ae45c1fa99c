// Package subsystem implements the subsystem index described in spec.md
// §4.3: for each subsystem name, the set of device paths currently
// classified under it, plus add/remove broadcast channels.
package subsystem

import "devicehub/kevent"

// Entry holds the devices currently classified under one subsystem name,
// plus its two broadcast channels.
type Entry struct {
	Name    string
	devices map[string]struct{}

	OnAdd    *kevent.Broadcaster
	OnRemove *kevent.Broadcaster
}

func newEntry(name string) *Entry {
	return &Entry{
		Name:     name,
		devices:  make(map[string]struct{}),
		OnAdd:    kevent.NewBroadcaster(),
		OnRemove: kevent.NewBroadcaster(),
	}
}

// Devices returns the set of device paths currently classified under this
// entry's subsystem, as a freshly allocated slice.
func (e *Entry) Devices() []string {
	paths := make([]string, 0, len(e.devices))
	for p := range e.devices {
		paths = append(paths, p)
	}
	return paths
}

// Has reports whether path is currently classified under this subsystem.
func (e *Entry) Has(path string) bool {
	_, ok := e.devices[path]
	return ok
}

// Index maps subsystem names to their Entry. Index is not safe for
// concurrent use by itself — callers (devicemgr) hold it behind the same
// lock that guards the device tree, so that tree inserts/removes and
// subsystem-index updates stay observably atomic (spec.md §4.6 invariant).
type Index struct {
	entries map[string]*Entry
}

// New returns an empty subsystem index.
func New() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Lookup returns the entry for name, or nil if no device has ever been
// classified under it.
func (idx *Index) Lookup(name string) *Entry {
	return idx.entries[name]
}

// Names returns every subsystem name with at least one currently classified
// device, in no particular order. A subsystem whose last device has been
// removed keeps its Entry (so onSubsystemAdd still fires at most once for
// it, per spec.md §4.3/§8 law 5) but drops out of Names until a device is
// classified under it again.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.entries))
	for name, e := range idx.entries {
		if len(e.devices) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// AddDevice classifies path under subsystem s, creating the entry (and
// firing onAdded) if s hasn't been seen before. It always inserts path into
// the entry's device set and fires OnAdd, even on first creation — s is
// passed to onAdded exactly once per Index per spec.md §4.3/§8 law 5.
func (idx *Index) AddDevice(s string, path string, onAdded func(name string)) {
	e, ok := idx.entries[s]
	if !ok {
		e = newEntry(s)
		idx.entries[s] = e
		if onAdded != nil {
			onAdded(s)
		}
	}
	e.devices[path] = struct{}{}
	e.OnAdd.Publish(kevent.Event{Action: kevent.Add, DevPath: path})
}

// RemoveDevice removes path from subsystem s's device set and fires
// OnRemove. It is a no-op if s or path is unknown.
func (idx *Index) RemoveDevice(s string, path string) {
	e, ok := idx.entries[s]
	if !ok {
		return
	}
	if _, present := e.devices[path]; !present {
		return
	}
	delete(e.devices, path)
	e.OnRemove.Publish(kevent.Event{Action: kevent.Remove, DevPath: path})
}
