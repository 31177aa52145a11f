package virtual

import (
	"sync"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/internal/fifo"
	"github.com/samsamfire/goepos/pkg/channel"
	log "github.com/sirupsen/logrus"
)

// In memory channel implementation primarily used for testing
// Bytes written by the host are handed to a [Peer] which plays the
// device, its answer is buffered and signaled like on a real line.

func init() {
	channel.RegisterInterface("virtual", NewVirtualChannel)
}

const rxBufferSize = 1024

// Peer is the device at the other end of a virtual channel
type Peer interface {
	// Receive gets every chunk written by the host and returns the
	// bytes the device answers with, nil for no answer
	Receive(p []byte) []byte
}

// PeerFunc adapts a function to the [Peer] interface
type PeerFunc func(p []byte) []byte

func (f PeerFunc) Receive(p []byte) []byte {
	return f(p)
}

type Channel struct {
	logger    *log.Entry
	mu        sync.Mutex
	name      string
	peer      Peer
	isOpen    bool
	openErr   error
	rx        *fifo.Fifo
	listener  channel.Listener
	latency   time.Duration
	written   [][]byte
	openCount int
}

// NewVirtualChannel creates a channel without peer, nothing ever answers
func NewVirtualChannel(name string, _ channel.Settings) (channel.Channel, error) {
	return New(name, nil), nil
}

// New creates a virtual channel connected to peer
func New(name string, peer Peer) *Channel {
	return &Channel{
		logger: log.WithFields(log.Fields{"service": "[VIRTUAL]", "channel": name}),
		name:   name,
		peer:   peer,
		rx:     fifo.NewFifo(rxBufferSize),
	}
}

// SetPeer replaces the device at the other end
func (c *Channel) SetPeer(peer Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = peer
}

// SetLatency delays every answer of the peer by d
func (c *Channel) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

// SetOpenError makes the next calls to Open fail with err, nil restores
func (c *Channel) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	if !c.isOpen {
		c.isOpen = true
		c.openCount++
		c.rx.Reset()
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = false
	c.rx.Reset()
	return nil
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// OpenCount returns how many times the channel went from closed to open
func (c *Channel) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openCount
}

// "Write" implementation of Channel interface
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	if !c.isOpen {
		c.mu.Unlock()
		return 0, epos.ErrPortClosed
	}
	chunk := append([]byte{}, p...)
	c.written = append(c.written, chunk)
	peer, latency := c.peer, c.latency
	c.mu.Unlock()

	c.logger.WithField("raw", chunk).Trace("[TX]")
	if peer == nil {
		return len(p), nil
	}
	reply := peer.Receive(chunk)
	if len(reply) == 0 {
		return len(p), nil
	}
	if latency > 0 {
		time.AfterFunc(latency, func() { c.Inject(reply) })
	} else {
		c.Inject(reply)
	}
	return len(p), nil
}

// Inject appends bytes to the receive buffer as if the device had sent
// them and raises the data ready notification
func (c *Channel) Inject(p []byte) {
	c.mu.Lock()
	if !c.isOpen {
		c.mu.Unlock()
		return
	}
	c.rx.Write(p)
	listener := c.listener
	c.mu.Unlock()
	c.logger.WithField("raw", p).Trace("[RX]")
	if listener != nil {
		listener.DataReady()
	}
}

func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx.Occupied()
}

func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return 0, epos.ErrPortClosed
	}
	return c.rx.Read(p), nil
}

// "Subscribe" implementation of Channel interface
func (c *Channel) Subscribe(listener channel.Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
	return nil
}

// Written returns a copy of every chunk written by the host, in order
func (c *Channel) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	written := make([][]byte, len(c.written))
	copy(written, c.written)
	return written
}
