package devicemgr

import (
	"devicehub/devtree"
	deverrors "devicehub/errors"
	"devicehub/logging"
)

// GetDeviceHandle implements the handle broker from spec.md §4.9: mint an
// ephemeral devfs name, mknod it to device's kind/id, open it read/write
// non-blocking, then unlink — a failed unlink is a warning, not a caller
// visible error, since the handle is already usable.
func (m *Manager) GetDeviceHandle(device *devtree.Device) (Handle, error) {
	if device == nil {
		return nil, deverrors.ErrInvalidParamErr
	}
	name := m.nextDevName()

	if err := m.devfs.Mknod(name, device); err != nil {
		return nil, deverrors.WrapWithPath(err, deverrors.ErrIO, "getDeviceHandle", name)
	}

	handle, err := m.devfs.Open(name)
	if err != nil {
		return nil, deverrors.WrapWithPath(err, deverrors.ErrIO, "getDeviceHandle", name)
	}

	if err := m.devfs.Unlink(name); err != nil {
		logging.Warn("unlink of ephemeral device node failed", "name", name, "error", err)
	}

	return handle, nil
}

// GetDeviceHandleByName resolves path in the tree, then opens a handle for
// its device, per spec.md §4.6/§4.9.
func (m *Manager) GetDeviceHandleByName(path string) (Handle, error) {
	node := m.DeviceLookup(path)
	if node == nil {
		return nil, deverrors.WrapWithPath(deverrors.ErrDeviceNotFound, deverrors.ErrNotFound, "getDeviceHandleByName", path)
	}
	if node.Device == nil {
		return nil, deverrors.WrapWithPath(deverrors.ErrEntryNotFound, deverrors.ErrNotFound, "getDeviceHandleByName", path)
	}
	return m.GetDeviceHandle(node.Device)
}

// ReleaseDeviceHandle closes h. Closing is idempotent from the caller's
// perspective: any error is wrapped but non-fatal to the manager.
func (m *Manager) ReleaseDeviceHandle(h Handle) error {
	if h == nil {
		return deverrors.ErrInvalidHandleErr
	}
	if err := h.Close(); err != nil {
		return deverrors.Wrap(err, deverrors.ErrIO, "releaseDeviceHandle")
	}
	return nil
}

// OpenDeviceDir opens the pre-existing devfs directory entry for device,
// per spec.md §4.9/§6: "./dev/{char|block}/{major}:{minor}".
func (m *Manager) OpenDeviceDir(device *devtree.Device) (Handle, error) {
	if device == nil {
		return nil, deverrors.ErrInvalidParamErr
	}
	kindDir := "char"
	if device.Kind == devtree.Block {
		kindDir = "block"
	}
	name := "./dev/" + kindDir + "/" + itoa(uint64(device.ID.Major)) + ":" + itoa(uint64(device.ID.Minor))
	h, err := m.devfs.OpenDir(name)
	if err != nil {
		return nil, deverrors.WrapWithPath(err, deverrors.ErrIO, "openDeviceDir", name)
	}
	return h, nil
}
