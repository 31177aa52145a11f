package serial

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goburrow/serial"
	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/stretchr/testify/assert"
)

// fakePort replays chunks pushed by the test, times out otherwise
type fakePort struct {
	mu      sync.Mutex
	chunks  chan []byte
	written [][]byte
	closed  chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{chunks: make(chan []byte, 10), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.chunks:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, serial.ErrTimeout
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, append([]byte{}, b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	close(p.closed)
	return nil
}

func newTestChannel(t *testing.T, port *fakePort, openErr error) *Channel {
	ch, err := NewSerialChannel("/dev/ttyTEST", channel.DefaultSettings())
	assert.Nil(t, err)
	c := ch.(*Channel)
	c.open = func(config *serial.Config) (io.ReadWriteCloser, error) {
		assert.Equal(t, "/dev/ttyTEST", config.Address)
		assert.Equal(t, 9600, config.BaudRate)
		assert.Equal(t, "N", config.Parity)
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	return c
}

func TestNewSerialChannel(t *testing.T) {
	_, err := NewSerialChannel("", channel.DefaultSettings())
	assert.ErrorIs(t, err, epos.ErrIllegalArgument)
	settings := channel.DefaultSettings()
	settings.ReadTimeoutMs = 0
	_, err = NewSerialChannel("/dev/ttyS0", settings)
	assert.ErrorIs(t, err, epos.ErrIllegalArgument)
	ch, err := channel.New("serial", "/dev/ttyS0", channel.DefaultSettings())
	assert.Nil(t, err)
	assert.False(t, ch.IsOpen())
}

func TestOpenFailure(t *testing.T) {
	c := newTestChannel(t, nil, errors.New("no such device"))
	err := c.Open()
	assert.ErrorIs(t, err, epos.ErrPortOpen)
	assert.False(t, c.IsOpen())
	_, err = c.Write([]byte{0x10})
	assert.Equal(t, epos.ErrPortClosed, err)
}

func TestReception(t *testing.T) {
	port := newFakePort()
	c := newTestChannel(t, port, nil)
	var notified atomic.Int32
	assert.Nil(t, c.Subscribe(channel.ListenerFunc(func() { notified.Add(1) })))
	assert.Nil(t, c.Open())
	assert.True(t, c.IsOpen())
	// Opening twice is a no-op
	assert.Nil(t, c.Open())

	n, err := c.Write([]byte{0x10})
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{{0x10}}, port.written)

	port.chunks <- []byte{'O'}
	port.chunks <- []byte{0x00, 0x03}
	assert.Eventually(t, func() bool { return notified.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, c.Buffered())
	buf := make([]byte, 3)
	n, err = c.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, []byte{'O', 0x00, 0x03}, buf[:n])

	assert.Nil(t, c.Close())
	assert.False(t, c.IsOpen())
	_, err = c.Read(buf)
	assert.Equal(t, epos.ErrPortClosed, err)
	// Closing twice is a no-op
	assert.Nil(t, c.Close())
}

func TestReceiveBufferFull(t *testing.T) {
	port := newFakePort()
	c := newTestChannel(t, port, nil)
	var notified atomic.Int32
	assert.Nil(t, c.Subscribe(channel.ListenerFunc(func() { notified.Add(1) })))
	assert.Nil(t, c.Open())
	defer c.Close()

	chunk := make([]byte, rxChunkSize)
	for i := 0; i < 20; i++ {
		port.chunks <- chunk
	}
	assert.Eventually(t, func() bool { return notified.Load() == 20 }, time.Second, 5*time.Millisecond)
	// One slot of the fifo always stays empty
	assert.Equal(t, rxBufferSize-1, c.Buffered())
	c.mu.Lock()
	assert.Equal(t, 20*rxChunkSize-(rxBufferSize-1), c.rx.Dropped())
	c.mu.Unlock()
}
