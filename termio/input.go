// Package termio implements the asynchronous terminal I/O core from
// spec.md §4.7–§4.8: a pair of reader/writer state machines that multiplex
// one kernel handle among many concurrent waiters with zero-copy delivery
// into caller-supplied buffers.
//
// The reference design assumes non-blocking handles polled from a
// dedicated loop. Go's os.File already parks the calling goroutine in the
// runtime poller on a blocking Read/Write, which gives the same external
// behavior (the handle's own goroutine blocks; callers of readBytes/
// writeBytes never do) without a separate readiness-wait step, so the
// reader/writer loops here issue plain blocking syscalls instead of a
// non-blocking read guarded by a poll. The queue/staging/completion
// machinery above that is unchanged from the reference design.
package termio

import (
	"io"
	"sync"

	deverrors "devicehub/errors"
	"devicehub/logging"
	"devicehub/metrics"
)

// ReadResult is the completion value of a readBytes request (spec.md §9
// open-question decision: EOF is a typed, non-error completion).
type ReadResult struct {
	N   int
	EOF bool
	Err error
}

// Completion is a single-shot signal carrying a ReadResult.
type Completion struct {
	done chan ReadResult
}

func newCompletion() *Completion {
	return &Completion{done: make(chan ReadResult, 1)}
}

// Wait blocks until the completion is signalled and returns its result.
func (c *Completion) Wait() ReadResult {
	return <-c.done
}

func (c *Completion) signal(r ReadResult) {
	c.done <- r
}

type waiter struct {
	dst       []byte
	remaining int
	total     int
	completion *Completion
}

// stagingRing buffers bytes that arrive when no waiter is present. read_off
// <= write_off always; both reset to 0 once fully drained (spec.md §4.7),
// except while the reader loop owns the ring and is reading into it.
type stagingRing struct {
	buf      []byte
	readOff  int
	writeOff int
	owned    bool
}

func newStagingRing(size int) *stagingRing {
	return &stagingRing{buf: make([]byte, size)}
}

// drain copies up to len(dst) buffered bytes into dst and returns the count.
func (s *stagingRing) drain(dst []byte) int {
	n := copy(dst, s.buf[s.readOff:s.writeOff])
	s.readOff += n
	if s.readOff == s.writeOff && !s.owned {
		s.readOff, s.writeOff = 0, 0
	}
	return n
}

// InputCore multiplexes a single readable handle among concurrent readBytes
// callers, per spec.md §4.7.
type InputCore struct {
	handle io.Reader

	mu      sync.Mutex
	ring    *stagingRing
	waiters []*waiter // head = index 0 (newest); oldest is waiters[len-1]

	closed bool
	eof    bool
	err    error

	wake chan struct{}
}

// NewInputCore wraps handle with a reader state machine and starts its
// dedicated reader loop. stagingSize bounds the ring used when no waiter is
// parked.
func NewInputCore(handle io.Reader, stagingSize int) *InputCore {
	c := &InputCore{
		handle: handle,
		ring:   newStagingRing(stagingSize),
		wake:   make(chan struct{}, 1),
	}
	go c.readerLoop()
	return c
}

// ReadBytes implements readBytes(size, dst) → Completion (spec.md §4.7
// steps 1–2): it first drains the staging ring, then — if that didn't
// satisfy the request — enqueues the remainder as a pending waiter.
func (c *InputCore) ReadBytes(dst []byte) *Completion {
	size := len(dst)
	completion := newCompletion()

	c.mu.Lock()
	copied := c.ring.drain(dst)
	if copied == size {
		c.mu.Unlock()
		completion.signal(ReadResult{N: copied})
		return completion
	}
	if c.eof {
		c.mu.Unlock()
		completion.signal(ReadResult{N: copied, EOF: true})
		return completion
	}
	if c.closed {
		c.mu.Unlock()
		completion.signal(ReadResult{N: copied, Err: deverrors.ErrHandleClosed})
		return completion
	}

	w := &waiter{dst: dst[copied:], remaining: size - copied, total: copied, completion: completion}
	c.waiters = append([]*waiter{w}, c.waiters...) // prepend: new requests go to the head
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return completion
}

// readerLoop is the single dedicated reader task (spec.md §4.7).
func (c *InputCore) readerLoop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}

		var dst []byte
		usingWaiter := len(c.waiters) > 0
		if usingWaiter {
			tail := c.waiters[len(c.waiters)-1]
			dst = tail.dst
		} else {
			if c.ring.owned {
				c.mu.Unlock()
				<-c.wake
				continue
			}
			free := len(c.ring.buf) - c.ring.writeOff
			if free == 0 {
				c.mu.Unlock()
				<-c.wake
				continue
			}
			c.ring.owned = true
			dst = c.ring.buf[c.ring.writeOff:]
		}
		c.mu.Unlock()

		n, err := c.handle.Read(dst)
		if n > 0 {
			metrics.ObserveTerminalBytes("read", n)
		}

		c.mu.Lock()
		if usingWaiter {
			c.commitWaiter(n)
		} else {
			c.ring.writeOff += n
			c.ring.owned = false
			// Bytes just landed in the ring, not in any caller's buffer. A
			// waiter may have enqueued while this read was blocked (the
			// buffered wake is dropped while parked in handle.Read), so
			// hand the freshly staged bytes to the oldest pending waiter
			// before the next iteration picks a destination — otherwise
			// the loop would issue a brand-new read straight into that
			// waiter's buffer and deliver it bytes that arrived *after*
			// the ones now sitting in the ring, reordering the stream.
			c.serviceWaitersFromRing()
		}
		if err != nil {
			c.completeWithError(err)
			c.mu.Unlock()
			return
		}
		if n == 0 {
			c.completeWithError(io.EOF)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// commitWaiter is called with c.mu held, after a read into the tail
// waiter's buffer returned n bytes.
func (c *InputCore) commitWaiter(n int) {
	if len(c.waiters) == 0 {
		return
	}
	idx := len(c.waiters) - 1
	w := c.waiters[idx]
	w.remaining -= n
	w.total += n
	if w.remaining <= 0 {
		c.waiters = c.waiters[:idx]
		w.completion.signal(ReadResult{N: w.total})
		return
	}
	w.dst = w.dst[n:]
}

// serviceWaitersFromRing drains bytes already staged in the ring into
// pending waiters, oldest first, completing any waiter it fills. It issues
// no syscall — it only redistributes bytes the reader already has. Called
// with c.mu held, after a ring-destined read commits.
func (c *InputCore) serviceWaitersFromRing() {
	for len(c.waiters) > 0 {
		if c.ring.readOff == c.ring.writeOff {
			return
		}
		idx := len(c.waiters) - 1
		w := c.waiters[idx]
		n := c.ring.drain(w.dst)
		w.total += n
		w.remaining -= n
		if w.remaining <= 0 {
			c.waiters = c.waiters[:idx]
			w.completion.signal(ReadResult{N: w.total})
			continue
		}
		w.dst = w.dst[n:]
	}
}

// completeWithError is called with c.mu held. A zero-byte read is EOF; any
// other error is fatal to the stream — both drain every pending waiter
// without consuming stream bytes, per spec.md §7/§9.
func (c *InputCore) completeWithError(err error) {
	isEOF := err == io.EOF
	c.eof = isEOF
	c.closed = true
	c.err = err
	if !isEOF {
		logging.Warn("terminal input handle error, stream closed", "error", err)
	}
	for _, w := range c.waiters {
		w.completion.signal(ReadResult{N: w.total, EOF: isEOF, Err: errOrNil(err, isEOF)})
	}
	c.waiters = nil
}

func errOrNil(err error, isEOF bool) error {
	if isEOF {
		return nil
	}
	return err
}

// ReadFixed implements readFixed<T>(h) (spec.md §6): a synchronous read of
// exactly len(dst) bytes, blocking the caller until the buffer is full, EOF
// is reached, or the stream fails. The size is known at the call site (the
// caller passes a buffer sized to T), matching the reference API's generic
// signature without Go generics doing any real work here.
func (c *InputCore) ReadFixed(dst []byte) error {
	res := c.ReadBytes(dst).Wait()
	if res.Err != nil {
		return res.Err
	}
	if res.EOF && res.N < len(dst) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// WaitForKey implements waitForKey(h) (spec.md §6): block until a single
// byte is available and return it.
func (c *InputCore) WaitForKey() (byte, error) {
	var buf [1]byte
	res := c.ReadBytes(buf[:]).Wait()
	if res.Err != nil {
		return 0, res.Err
	}
	if res.N == 0 {
		return 0, io.EOF
	}
	return buf[0], nil
}
