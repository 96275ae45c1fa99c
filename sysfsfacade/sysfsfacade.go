// Package sysfsfacade implements the narrow sysfs reader facade from
// spec.md §4.4: for a sysfs-relative path it reads the subsystem
// classification symlink and the dev file, and builds the resulting
// devtree.Device. The raw directory walk and symlink/file syscalls
// themselves are out of scope (spec.md §1) — this package only defines the
// Root interface they must satisfy and a concrete os-backed adapter.
package sysfsfacade

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"devicehub/devtree"
	deverrors "devicehub/errors"
)

// Root abstracts the sysfs directory tree so the device manager can be
// tested against a fake without touching a real filesystem.
type Root interface {
	// Readlink resolves the symlink at name (relative to the root) and
	// returns its target's final path component.
	Readlink(name string) (string, error)
	// ReadFile reads the full contents of the file at name (relative to
	// the root).
	ReadFile(name string) ([]byte, error)
	// Walk enumerates every directory under "devices", best-effort,
	// calling fn with the path relative to "devices" for each one that is
	// not itself a symlink. Errors encountered partway through a subtree
	// are reported to fn via the err parameter rather than aborting the
	// whole walk; fn returning a non-nil error stops the walk.
	Walk(fn func(relPath string, err error) error) error
}

// OSRoot is a Root backed by a real mounted sysfs at Base.
type OSRoot struct {
	Base string
}

// NewOSRoot returns an OSRoot rooted at base (typically "/sys").
func NewOSRoot(base string) *OSRoot {
	return &OSRoot{Base: base}
}

func (r *OSRoot) Readlink(name string) (string, error) {
	target, err := os.Readlink(filepath.Join(r.Base, name))
	if err != nil {
		return "", err
	}
	return filepath.Base(target), nil
}

func (r *OSRoot) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.Base, name))
}

func (r *OSRoot) Walk(fn func(relPath string, err error) error) error {
	devicesRoot := filepath.Join(r.Base, "devices")
	return filepath.WalkDir(devicesRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fn("", err)
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(devicesRoot, path)
		if relErr != nil {
			return fn("", relErr)
		}
		if rel == "." {
			return nil
		}
		return fn(filepath.ToSlash(rel), nil)
	})
}

// ReadSubsystem returns the basename of the symlink at p/subsystem, or
// "none" if it doesn't exist or can't be read.
func ReadSubsystem(root Root, p string) string {
	name, err := root.Readlink(joinSysfs(p, "subsystem"))
	if err != nil {
		return "none"
	}
	return filepath.Base(name)
}

// ReadDevFile parses the first 16 bytes of p/dev as "MAJOR:MINOR\n" into a
// devtree.DeviceID. A malformed dev file is reported as a *deverrors.DeviceError
// wrapping ErrMalformedDevFile; the caller still adds the node, without a
// device, per spec.md §4.4.
func ReadDevFile(root Root, p string) (devtree.DeviceID, error) {
	raw, err := root.ReadFile(joinSysfs(p, "dev"))
	if err != nil {
		return devtree.DeviceID{}, deverrors.WrapWithPath(err, deverrors.ErrIO, "readDevFile", p)
	}
	if len(raw) > 16 {
		raw = raw[:16]
	}
	id, err := parseDevFile(raw)
	if err != nil {
		return devtree.DeviceID{}, deverrors.WrapWithPath(err, deverrors.ErrParse, "readDevFile", p)
	}
	return id, nil
}

func parseDevFile(raw []byte) (devtree.DeviceID, error) {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	s := string(bytes.TrimSpace(line))
	major, minor, ok := strings.Cut(s, ":")
	if !ok {
		return devtree.DeviceID{}, deverrors.ErrMalformedDevFile
	}
	maj, err := strconv.ParseUint(major, 10, 32)
	if err != nil {
		return devtree.DeviceID{}, deverrors.ErrMalformedDevFile
	}
	min, err := strconv.ParseUint(minor, 10, 32)
	if err != nil {
		return devtree.DeviceID{}, deverrors.ErrMalformedDevFile
	}
	return devtree.DeviceID{Major: uint32(maj), Minor: uint32(min)}, nil
}

// MakeDevice builds a devtree.Device from a subsystem name and id: kind is
// Block iff subsystem == "block", Char otherwise.
func MakeDevice(subsystem string, id devtree.DeviceID) *devtree.Device {
	kind := devtree.Char
	if subsystem == "block" {
		kind = devtree.Block
	}
	return &devtree.Device{Kind: kind, ID: id}
}

func joinSysfs(p, leaf string) string {
	if p == "" {
		return leaf
	}
	return p + "/" + leaf
}
