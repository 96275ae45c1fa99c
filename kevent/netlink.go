package kevent

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"devicehub/logging"
	"devicehub/metrics"
)

// NetlinkSource is the real kernel collaborator for Source: it reads
// NETLINK_KOBJECT_UEVENT datagrams and republishes them as parsed Events.
// Per spec.md §1 this socket-level plumbing is an external collaborator —
// NetlinkSource stays a thin adapter with no tree/subsystem logic of its
// own, just framing the raw recv loop the manager's Source needs.
type NetlinkSource struct {
	*Source
	fd int
}

// DialNetlink opens and binds a NETLINK_KOBJECT_UEVENT socket to the kernel
// multicast group that carries device uevents.
func DialNetlink() (*NetlinkSource, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("kevent: open netlink socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kevent: bind netlink socket: %w", err)
	}
	return &NetlinkSource{Source: NewSource(), fd: fd}, nil
}

// Run reads datagrams until ctx is cancelled or the socket errors. Each
// datagram is parsed with ParseUevent and, on success, published; malformed
// datagrams are logged and skipped, matching spec.md §7's policy that a
// single malformed event must never bring the stream down.
func (n *NetlinkSource) Run(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	log := logging.Default()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nread, _, err := unix.Recvfrom(n.fd, buf, 0)
		if err != nil {
			return fmt.Errorf("kevent: recvfrom: %w", err)
		}

		ev, err := ParseUevent(buf[:nread])
		if err != nil {
			log.Warn("discarding malformed uevent", "error", err)
			metrics.ObserveMalformedEvent()
			continue
		}
		n.Publish(ev)
	}
}

// Close releases the underlying socket.
func (n *NetlinkSource) Close() error {
	return unix.Close(n.fd)
}
