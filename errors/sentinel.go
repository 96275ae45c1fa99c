// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Tree/subsystem lookup errors.
var (
	// ErrDeviceNotFound indicates the device path has no node in the tree.
	ErrDeviceNotFound = &DeviceError{
		Kind:   ErrNotFound,
		Detail: "device not found",
	}

	// ErrEntryNotFound indicates a subsystem or intermediate entry was not found.
	ErrEntryNotFound = &DeviceError{
		Kind:   ErrNotFound,
		Detail: "entry not found",
	}

	// ErrMoveSourceMissing indicates a move event's source path had no node
	// (spec.md §9 open question: warn and fall back to deviceAdd).
	ErrMoveSourceMissing = &DeviceError{
		Kind:   ErrNotFound,
		Detail: "move source not found",
	}
)

// Handle and parameter errors.
var (
	// ErrInvalidHandleErr indicates an operation on a closed or unknown handle.
	ErrInvalidHandleErr = &DeviceError{
		Kind:   ErrInvalidHandle,
		Detail: "invalid handle",
	}

	// ErrInvalidParamErr indicates a caller-supplied parameter was invalid.
	ErrInvalidParamErr = &DeviceError{
		Kind:   ErrInvalidParam,
		Detail: "invalid parameter",
	}

	// ErrInvalidRangeErr indicates a buffer or size argument was out of range.
	ErrInvalidRangeErr = &DeviceError{
		Kind:   ErrInvalidRange,
		Detail: "invalid range",
	}
)

// Resource errors.
var (
	// ErrMemory indicates a buffer/allocation failure.
	ErrMemory = &DeviceError{
		Kind:   ErrResource,
		Detail: "memory allocation failed",
	}

	// ErrHandleClosed indicates the terminal handle's stream has been torn
	// down after a hard I/O error; further requests fail fast.
	ErrHandleClosed = &DeviceError{
		Kind:   ErrResource,
		Detail: "handle closed",
	}
)

// Event and parsing errors.
var (
	// ErrDevpathOldMissing indicates a Move event lacked DEVPATH_OLD.
	ErrDevpathOldMissing = &DeviceError{
		Kind:   ErrParse,
		Detail: "move event missing DEVPATH_OLD",
	}

	// ErrMalformedDevFile indicates a sysfs dev file was not "MAJOR:MINOR\n".
	ErrMalformedDevFile = &DeviceError{
		Kind:   ErrParse,
		Detail: "malformed dev file",
	}
)

// Handle broker errors.
var (
	// ErrMknodFailed indicates device node creation failed.
	ErrMknodFailed = &DeviceError{
		Kind:   ErrIO,
		Detail: "mknod failed",
	}

	// ErrOpenFailed indicates opening the ephemeral device file failed.
	ErrOpenFailed = &DeviceError{
		Kind:   ErrIO,
		Detail: "open failed",
	}
)
