/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package telnet

import (
	"io"
	"net"
	"sync"

	"github.com/netclassic/netproto/neterr"
)

// ringSize bounds the decoded-data ring buffer that sits between the
// reader goroutine (in Threaded mode) and the caller's Read calls.
const ringSize = 2048

// ring is a small fixed-capacity FIFO byte buffer with blocking Get and
// blocking Put, guarded by its own mutex/condition variable. A full ring
// makes the writer wait for a reader to drain it rather than dropping
// bytes. It never itself performs I/O: filling it is the reader
// goroutine's job, in Threaded mode, or Conn.Read's own job, in Inline
// mode.
type ring struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf        [ringSize]byte
	head, tail int
	count      int

	eof     bool
	ioErr   error
	closing bool
}

func newRing() *ring {
	r := &ring{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// put blocks while the ring is full, waiting for a reader to drain it,
// and writes every byte of p before returning. It gives up early and
// returns the number actually written if the ring is closed while it is
// waiting for space.
func (r *ring) put(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(p) {
		for r.count == ringSize && !r.closing {
			r.cond.Wait()
		}
		if r.closing {
			break
		}
		r.buf[r.tail] = p[n]
		r.tail = (r.tail + 1) % ringSize
		r.count++
		n++
		r.cond.Broadcast()
	}
	return n
}

func (r *ring) setEOF(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eof = true
	r.ioErr = err
	r.cond.Broadcast()
}

// get blocks until at least one byte is available, EOF was reached, or
// the ring is closing, then drains as much as fits into p.
func (r *ring) get(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count == 0 && !r.eof && !r.closing {
		r.cond.Wait()
	}
	if r.count == 0 {
		if r.closing {
			return 0, io.EOF
		}
		if r.ioErr != nil {
			return 0, r.ioErr
		}
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && r.count > 0 {
		p[n] = r.buf[r.head]
		r.head = (r.head + 1) % ringSize
		r.count--
		n++
	}
	return n, nil
}

func (r *ring) closeRing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closing = true
	r.cond.Broadcast()
}

// Mode selects how a Conn pumps inbound bytes through the state machine.
type Mode int

const (
	// Threaded runs a dedicated reader goroutine that drives the state
	// machine and fills the ring buffer; Read drains the ring.
	Threaded Mode = iota
	// Inline drives the state machine directly from Read, with no
	// separate reader goroutine.
	Inline
)

// Conn wraps a network connection with telnet option negotiation. Reads
// return decoded application data with IAC sequences stripped and
// negotiation handled transparently; Writes escape data bytes before
// sending.
type Conn struct {
	nc   net.Conn
	mode Mode

	engine *engine
	ring   *ring

	writeMu sync.Mutex // serializes outbound writes (negotiation vs application data)

	closeOnce sync.Once
	closeErr  error

	readerDone    chan struct{}
	startedInline bool
}

// NewConn wraps nc, negotiating the given options. In Threaded mode a
// reader goroutine starts immediately and startup negotiation is sent
// right away; in Inline mode startup negotiation is sent on the first
// Read.
func NewConn(nc net.Conn, mode Mode, handlers ...OptionHandler) *Conn {
	c := &Conn{
		nc:         nc,
		mode:       mode,
		ring:       newRing(),
		readerDone: make(chan struct{}),
	}
	c.engine = newEngine(handlers, c.writeRaw, func(b byte) { c.ring.put([]byte{b}) })

	if mode == Threaded {
		c.engine.negotiateStartup()
		go c.readLoop()
	}
	return c
}

func (c *Conn) writeRaw(p []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = c.nc.Write(p)
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		for i := 0; i < n; i++ {
			c.engine.Feed(buf[i])
		}
		if err != nil {
			c.ring.setEOF(wrapReadErr(err))
			return
		}
	}
}

func wrapReadErr(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return neterr.New(neterr.Io, "telnet.Conn.Read", err)
}

// Read returns decoded application data. In Threaded mode it drains the
// ring buffer filled by the reader goroutine; in Inline mode it pulls
// and decodes bytes from the underlying connection itself, one chunk at
// a time, until at least one application byte is available.
func (c *Conn) Read(p []byte) (int, error) {
	if c.mode == Inline {
		return c.readInline(p)
	}
	return c.ring.get(p)
}

func (c *Conn) readInline(p []byte) (int, error) {
	if !c.startedInline {
		c.startedInline = true
		c.engine.negotiateStartup()
	}
	buf := make([]byte, 4096)
	for {
		if n, err := c.ring.tryGet(p); n > 0 || err != nil {
			return n, err
		}
		n, err := c.nc.Read(buf)
		for i := 0; i < n; i++ {
			c.engine.Feed(buf[i])
		}
		if err != nil {
			c.ring.setEOF(wrapReadErr(err))
			return c.ring.tryGet(p)
		}
	}
}

// tryGet is a non-blocking variant of get used by the inline reader,
// which already knows whether more underlying I/O is possible.
func (r *ring) tryGet(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		if r.eof {
			if r.ioErr != nil {
				return 0, r.ioErr
			}
			return 0, io.EOF
		}
		return 0, nil
	}
	n := 0
	for n < len(p) && r.count > 0 {
		p[n] = r.buf[r.head]
		r.head = (r.head + 1) % ringSize
		r.count--
		n++
	}
	return n, nil
}

// Available reports how many decoded bytes are immediately readable
// without blocking. It never itself drives I/O.
func (c *Conn) Available() int {
	c.ring.mu.Lock()
	defer c.ring.mu.Unlock()
	return c.ring.count
}

// Write escapes p for the wire (doubling IAC bytes) and sends it,
// serialized against any in-flight negotiation reply.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(EncodeData(p)); err != nil {
		return 0, neterr.New(neterr.Io, "telnet.Conn.Write", err)
	}
	return len(p), nil
}

// Close is idempotent: the underlying connection is closed exactly once,
// which unblocks any goroutine inside Read, and the ring is marked
// closing so blocked readers return io.EOF rather than hang forever.
// It never holds the ring's lock and the writer's lock at once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
		c.ring.closeRing()
		if c.mode == Threaded {
			<-c.readerDone
		}
	})
	return c.closeErr
}
