package devicemgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"devicehub/devtree"
	"devicehub/kevent"
)

// fakeSysfs implements sysfsfacade.Root over in-memory maps, for tests.
type fakeSysfs struct {
	links map[string]string
	files map[string][]byte
	dirs  []string
}

func newFakeSysfs() *fakeSysfs {
	return &fakeSysfs{links: map[string]string{}, files: map[string][]byte{}}
}

func (f *fakeSysfs) Readlink(name string) (string, error) {
	v, ok := f.links[name]
	if !ok {
		return "", errors.New("no link")
	}
	return v, nil
}

func (f *fakeSysfs) ReadFile(name string) ([]byte, error) {
	v, ok := f.files[name]
	if !ok {
		return nil, errors.New("no file")
	}
	return v, nil
}

func (f *fakeSysfs) Walk(fn func(relPath string, err error) error) error {
	for _, d := range f.dirs {
		if err := fn(d, nil); err != nil {
			return err
		}
	}
	return nil
}

type fakeHandle struct{ closed bool }

func (h *fakeHandle) Read(p []byte) (int, error)  { return 0, nil }
func (h *fakeHandle) Write(p []byte) (int, error) { return len(p), nil }
func (h *fakeHandle) Close() error                { h.closed = true; return nil }

type fakeDevfs struct {
	mknodCalls []string
	unlinked   []string
}

func (f *fakeDevfs) Mknod(name string, dev *devtree.Device) error {
	f.mknodCalls = append(f.mknodCalls, name)
	return nil
}
func (f *fakeDevfs) Open(name string) (Handle, error) { return &fakeHandle{}, nil }
func (f *fakeDevfs) Unlink(name string) error          { f.unlinked = append(f.unlinked, name); return nil }
func (f *fakeDevfs) OpenDir(name string) (Handle, error) { return &fakeHandle{}, nil }

func TestInitColdPlugOneDevice(t *testing.T) {
	sysfs := newFakeSysfs()
	sysfs.dirs = []string{"platform/foo"}
	sysfs.links["platform/foo/subsystem"] = "/sys/class/xyz"
	sysfs.files["platform/foo/dev"] = []byte("240:5\n")

	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	node := m.DeviceLookup("platform/foo")
	if node == nil {
		t.Fatal("expected a node at platform/foo after cold-plug enumeration")
	}
	if node.Subsystem != "xyz" {
		t.Errorf("Subsystem = %q, want xyz", node.Subsystem)
	}
	if node.Device == nil || node.Device.ID.Major != 240 || node.Device.ID.Minor != 5 {
		t.Errorf("Device = %+v, want {Char {240 5}}", node.Device)
	}

	devices := m.ListDevicesWithClass("xyz")
	if len(devices) != 1 || devices[0] != "platform/foo" {
		t.Errorf("ListDevicesWithClass(xyz) = %v, want [platform/foo]", devices)
	}
}

func TestHotPlugAdd(t *testing.T) {
	sysfs := newFakeSysfs()
	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	var subFired []string
	m.OnSubsystemAdd().Subscribe(func(ev kevent.Event) {
		subFired = append(subFired, ev.DevPath)
	})

	m.Events().Publish(kevent.Event{
		Action:  kevent.Add,
		DevPath: "/devices/a/b",
		Details: map[string]string{"MAJOR": "7", "MINOR": "2", "SUBSYSTEM": "block"},
	})

	waitFor(t, func() bool { return m.DeviceLookup("a/b") != nil })

	node := m.DeviceLookup("a/b")
	if node.Device == nil || node.Device.Kind != devtree.Block {
		t.Fatalf("expected a/b to be a block device, got %+v", node.Device)
	}
	if m.DeviceLookup("a") == nil {
		t.Error("expected anonymous ancestor 'a' to exist")
	}

	waitFor(t, func() bool { return len(subFired) == 1 && subFired[0] == "block" })

	devs := m.ListDevicesWithClass("block")
	if len(devs) != 1 || devs[0] != "a/b" {
		t.Errorf("ListDevicesWithClass(block) = %v, want [a/b]", devs)
	}
}

func TestHotPlugMove(t *testing.T) {
	sysfs := newFakeSysfs()
	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	m.Events().Publish(kevent.Event{
		Action:  kevent.Add,
		DevPath: "/devices/a/b",
		Details: map[string]string{"MAJOR": "7", "MINOR": "2", "SUBSYSTEM": "block"},
	})
	waitFor(t, func() bool { return m.DeviceLookup("a/b") != nil })

	var moveFired int
	if node := m.DeviceLookup("a/b"); node != nil {
		node.OnMove.Subscribe(func(ev kevent.Event) { moveFired++ })
	}

	m.Events().Publish(kevent.Event{
		Action:  kevent.Move,
		DevPath: "/devices/a/c",
		Details: map[string]string{"DEVPATH_OLD": "/devices/a/b"},
	})
	waitFor(t, func() bool { return m.DeviceLookup("a/c") != nil })

	if m.DeviceLookup("a/b") != nil {
		t.Error("expected a/b to be gone after move")
	}
	node := m.DeviceLookup("a/c")
	if node == nil || node.Device == nil || node.Device.Kind != devtree.Block {
		t.Fatalf("expected a/c to carry the moved block device, got %+v", node)
	}
	waitFor(t, func() bool { return moveFired == 1 })
}

func TestHotPlugRemove(t *testing.T) {
	sysfs := newFakeSysfs()
	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	m.Events().Publish(kevent.Event{
		Action:  kevent.Add,
		DevPath: "/devices/a/c",
		Details: map[string]string{"MAJOR": "7", "MINOR": "3", "SUBSYSTEM": "block"},
	})
	waitFor(t, func() bool { return m.DeviceLookup("a/c") != nil })

	m.Events().Publish(kevent.Event{Action: kevent.Remove, DevPath: "/devices/a/c"})
	waitFor(t, func() bool { return m.DeviceLookup("a/c") == nil })

	devs := m.ListDevicesWithClass("block")
	if len(devs) != 0 {
		t.Errorf("ListDevicesWithClass(block) after remove = %v, want []", devs)
	}
	if classes := m.ListDeviceClasses(); len(classes) != 0 {
		t.Errorf("ListDeviceClasses() after removing the only device = %v, want [] (no classified devices left)", classes)
	}
}

func TestGetDeviceHandleUnlinksAfterOpen(t *testing.T) {
	devfs := &fakeDevfs{}
	m := New(newFakeSysfs(), devfs)

	h, err := m.GetDeviceHandle(&devtree.Device{Kind: devtree.Char, ID: devtree.DeviceID{Major: 240, Minor: 5}})
	if err != nil {
		t.Fatalf("GetDeviceHandle: %v", err)
	}
	if h == nil {
		t.Fatal("expected a non-nil handle")
	}
	if len(devfs.mknodCalls) != 1 {
		t.Errorf("mknod calls = %d, want 1", len(devfs.mknodCalls))
	}
	if len(devfs.unlinked) != 1 || devfs.unlinked[0] != devfs.mknodCalls[0] {
		t.Errorf("expected the mknod'd name to be unlinked, got %v vs %v", devfs.unlinked, devfs.mknodCalls)
	}
}

func TestEphemeralNamesAreUnique(t *testing.T) {
	devfs := &fakeDevfs{}
	m := New(newFakeSysfs(), devfs)

	dev := &devtree.Device{Kind: devtree.Char, ID: devtree.DeviceID{Major: 1, Minor: 1}}
	if _, err := m.GetDeviceHandle(dev); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetDeviceHandle(dev); err != nil {
		t.Fatal(err)
	}
	if devfs.mknodCalls[0] == devfs.mknodCalls[1] {
		t.Errorf("expected distinct ephemeral names, got %v", devfs.mknodCalls)
	}
}

// TestColdPlugThenHotPlugChangeMerges exercises S7: a device enumerated
// during cold-plug is later found by a hot-plug Change event without being
// re-created or duplicated, and onChange fires exactly once.
func TestColdPlugThenHotPlugChangeMerges(t *testing.T) {
	sysfs := newFakeSysfs()
	sysfs.dirs = []string{"a/b"}
	sysfs.links["a/b/subsystem"] = "/sys/class/net"
	sysfs.files["a/b/dev"] = []byte("10:1\n")

	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	node := m.DeviceLookup("a/b")
	if node == nil {
		t.Fatal("expected cold-plug to have created a/b")
	}

	var changeFired int
	node.OnChange.Subscribe(func(ev kevent.Event) { changeFired++ })

	m.Events().Publish(kevent.Event{Action: kevent.Change, DevPath: "/devices/a/b"})
	waitFor(t, func() bool { return changeFired == 1 })

	// The node found after the event must be the same tree entry, not a
	// duplicate created alongside it.
	if m.DeviceLookup("a/b").Device.ID != node.Device.ID {
		t.Error("expected the same device identity after the change event")
	}
	if len(m.ListDevices()) != 1 {
		t.Errorf("ListDevices() = %v, want exactly one device (no duplication)", m.ListDevices())
	}
}

// TestDevFileWithoutSubsystemTolerated exercises S8: a dev file present
// with no subsystem symlink still yields a node carrying a device, with an
// empty subsystem, rather than being dropped.
func TestDevFileWithoutSubsystemTolerated(t *testing.T) {
	sysfs := newFakeSysfs()
	sysfs.dirs = []string{"anomaly"}
	sysfs.files["anomaly/dev"] = []byte("99:9\n")
	// deliberately no "anomaly/subsystem" link

	m := New(sysfs, &fakeDevfs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Init(ctx)

	node := m.DeviceLookup("anomaly")
	if node == nil {
		t.Fatal("expected a node for the anomalous device")
	}
	if node.Subsystem != "" {
		t.Errorf("Subsystem = %q, want empty", node.Subsystem)
	}
	if node.Device == nil || node.Device.ID.Major != 99 || node.Device.ID.Minor != 9 {
		t.Errorf("Device = %+v, want {Major:99 Minor:9}", node.Device)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
