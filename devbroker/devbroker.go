// Package devbroker provides the concrete devfs adapter the device
// manager's handle broker (spec.md §4.9) runs against: mknod a special
// file for a (kind, major, minor) triple, open it, and unlink it once
// opened. This mirrors the teacher's createDeviceNode/BindMountDevices
// mknod sequence (linux/devices.go), generalized from OCI container
// device whitelisting to ephemeral per-request device-file minting.
package devbroker

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"devicehub/devicemgr"
	"devicehub/devtree"
	deverrors "devicehub/errors"
)

// OSDevfs implements devicemgr.DevfsRoot over a real mounted tmpfs at Base.
type OSDevfs struct {
	Base string
}

// NewOSDevfs returns an OSDevfs rooted at base (typically a managed tmpfs
// mount, not the host's /dev).
func NewOSDevfs(base string) *OSDevfs {
	return &OSDevfs{Base: base}
}

// Mknod creates a character or block special file at name with dev's
// (kind, major, minor), matching the teacher's mode/devnum computation in
// createDeviceNode.
func (d *OSDevfs) Mknod(name string, dev *devtree.Device) error {
	path := filepath.Join(d.Base, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return deverrors.Wrap(err, deverrors.ErrIO, "mknod:mkdir")
	}

	var devType uint32
	if dev.Kind == devtree.Block {
		devType = unix.S_IFBLK
	} else {
		devType = unix.S_IFCHR
	}
	mode := devType | 0o666
	devNum := unix.Mkdev(dev.ID.Major, dev.ID.Minor)

	os.Remove(path)
	if err := unix.Mknod(path, mode, int(devNum)); err != nil {
		return deverrors.WrapWithDetail(err, deverrors.ErrIO, "mknod", err.Error())
	}
	return nil
}

// devHandle adapts *os.File to devicemgr.Handle (an identical method set,
// kept as a named type so the package doesn't leak *os.File directly).
type devHandle struct{ *os.File }

// Open opens name read/write, non-blocking, as spec.md §4.9 step 3
// requires.
func (d *OSDevfs) Open(name string) (devicemgr.Handle, error) {
	path := filepath.Join(d.Base, name)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, deverrors.Wrap(err, deverrors.ErrIO, "open")
	}
	return devHandle{f}, nil
}

// Unlink removes the special file at name. Per spec.md §7, a failure here
// is the caller's (devicemgr's) concern to log, not to fail on — Unlink
// just reports the raw error and lets the caller decide.
func (d *OSDevfs) Unlink(name string) error {
	return os.Remove(filepath.Join(d.Base, name))
}

// OpenDir opens the pre-existing devfs directory entry
// "./dev/{char|block}/{major}:{minor}" for a probe, per spec.md §4.9/§6.
func (d *OSDevfs) OpenDir(name string) (devicemgr.Handle, error) {
	path := filepath.Join(d.Base, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, deverrors.Wrap(err, deverrors.ErrIO, "openDeviceDir")
	}
	return devHandle{f}, nil
}
