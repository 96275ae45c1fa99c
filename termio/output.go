package termio

import (
	"io"
	"sync"

	"devicehub/logging"
	"devicehub/metrics"
)

// writeRequest is one pending writeBytes call (spec.md §4.8).
type writeRequest struct {
	src        []byte
	completion *Completion
}

// OutputCore multiplexes a single writable handle among concurrent
// writeBytes callers, per spec.md §4.8: requests queue FIFO and the writer
// loop services one at a time, re-appending on a short write.
type OutputCore struct {
	handle io.Writer

	mu      sync.Mutex
	queue   []*writeRequest // head = index 0 (newest); oldest is queue[len-1]
	closed  bool
	fatal   error

	wake chan struct{}
}

// NewOutputCore wraps handle with a writer state machine and starts its
// dedicated writer loop.
func NewOutputCore(handle io.Writer) *OutputCore {
	c := &OutputCore{handle: handle, wake: make(chan struct{}, 1)}
	go c.writerLoop()
	return c
}

// WriteBytes implements writeBytes(size, src) → Completion (spec.md §4.8):
// atomically prepend the request and return its completion immediately.
func (c *OutputCore) WriteBytes(src []byte) *Completion {
	completion := newCompletion()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		completion.signal(ReadResult{Err: c.fatal})
		return completion
	}
	req := &writeRequest{src: src, completion: completion}
	c.queue = append([]*writeRequest{req}, c.queue...)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return completion
}

// WriteLine implements writeLine(s) (spec.md §4.8): the payload write is
// fire-and-forget (pipelined), the trailing newline write is awaited
// synchronously so the caller knows the full line landed.
func (c *OutputCore) WriteLine(s string) ReadResult {
	if len(s) > 0 {
		c.WriteBytes([]byte(s))
	}
	return c.WriteBytes([]byte{'\n'}).Wait()
}

func (c *OutputCore) writerLoop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			<-c.wake
			continue
		}
		idx := len(c.queue) - 1
		req := c.queue[idx]
		c.queue = c.queue[:idx]
		c.mu.Unlock()

		n, err := c.handle.Write(req.src)
		if n > 0 {
			metrics.ObserveTerminalBytes("write", n)
		}

		if err != nil {
			c.fail(err)
			req.completion.signal(ReadResult{N: n, Err: err})
			return
		}
		if n == len(req.src) {
			req.completion.signal(ReadResult{N: n})
			continue
		}

		// Short write: re-append the remainder to the tail of the queue
		// (spec.md §8 law 7), preserving FIFO order relative to later
		// requests that haven't been serviced yet.
		remainder := &writeRequest{src: req.src[n:], completion: req.completion}
		c.mu.Lock()
		c.queue = append(c.queue, remainder)
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

func (c *OutputCore) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.fatal = err
	logging.Warn("terminal output handle error, stream closed", "error", err)
	for _, req := range c.queue {
		req.completion.signal(ReadResult{Err: err})
	}
	c.queue = nil
}
