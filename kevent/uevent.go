package kevent

import (
	"bytes"
	"fmt"
	"strings"
)

// ParseUevent decodes a single kernel uevent payload as delivered over the
// NETLINK_KOBJECT_UEVENT socket. This is the narrow, documented contract
// spec.md §6 asks for from the "netlink-uevent parser" external
// collaborator: the payload is a sequence of NUL-terminated strings, the
// first of the form "ACTION@DEVPATH" and the rest "KEY=VALUE". libudev
// forwards a second framing (an 8-byte "libudev\x00" magic header) that
// this parser ignores if present, accepting either the kernel's or
// udevd's own re-broadcast format.
func ParseUevent(payload []byte) (Event, error) {
	if i := bytes.Index(payload, []byte("libudev\x00")); i == 0 {
		// Skip the libudev framing header: magic string, then a fixed
		// binary header up to the first NUL-delimited field.
		if nul := bytes.IndexByte(payload, 0); nul >= 0 {
			if next := bytes.IndexByte(payload[nul+1:], 0); next < 0 {
				return Event{}, fmt.Errorf("kevent: truncated libudev header")
			}
		}
		if idx := bytes.Index(payload, []byte("ACTION=")); idx >= 0 {
			payload = payload[idx:]
		}
	}

	fields := splitFields(payload)
	if len(fields) == 0 {
		return Event{}, fmt.Errorf("kevent: empty uevent payload")
	}

	details := make(map[string]string, len(fields))
	var action, devpath string

	first := fields[0]
	if at := strings.IndexByte(first, '@'); at >= 0 && !strings.Contains(first, "=") {
		action = first[:at]
		devpath = first[at+1:]
		fields = fields[1:]
	}

	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			continue
		}
		key, val := f[:eq], f[eq+1:]
		details[key] = val
		switch key {
		case "ACTION":
			action = val
		case "DEVPATH":
			devpath = val
		}
	}

	if action == "" {
		return Event{}, fmt.Errorf("kevent: uevent missing ACTION")
	}
	if devpath == "" {
		return Event{}, fmt.Errorf("kevent: uevent missing DEVPATH")
	}

	ev := Event{DevPath: devpath, Details: details}
	switch action {
	case "add":
		ev.Action = Add
	case "remove":
		ev.Action = Remove
	case "move":
		ev.Action = Move
	case "change":
		ev.Action = Change
	case "online":
		ev.Action = Online
	case "offline":
		ev.Action = Offline
	default:
		ev.Action = Other
		ev.Raw = action
	}
	return ev, nil
}

func splitFields(payload []byte) []string {
	var out []string
	for _, part := range bytes.Split(payload, []byte{0}) {
		if len(part) == 0 {
			continue
		}
		out = append(out, string(part))
	}
	return out
}
