// Package serial implements [channel.Channel] on top of an RS-232 port.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/internal/fifo"
	"github.com/samsamfire/goepos/pkg/channel"
	log "github.com/sirupsen/logrus"
)

func init() {
	channel.RegisterInterface("serial", NewSerialChannel)
}

const (
	rxBufferSize = 1024
	rxChunkSize  = 64
)

type openFunc func(config *serial.Config) (io.ReadWriteCloser, error)

func openSerial(config *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(config)
}

type Channel struct {
	logger   *log.Entry
	mu       sync.Mutex
	config   serial.Config
	open     openFunc
	port     io.ReadWriteCloser
	rx       *fifo.Fifo
	listener channel.Listener
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSerialChannel creates a channel on the given device e.g. /dev/ttyUSB0
// The port is only opened by Open
func NewSerialChannel(address string, settings channel.Settings) (channel.Channel, error) {
	if address == "" {
		return nil, fmt.Errorf("%w : empty serial device", epos.ErrIllegalArgument)
	}
	if settings.ReadTimeoutMs <= 0 {
		// A blocking read would keep the reception routine from ever stopping
		return nil, fmt.Errorf("%w : read timeout must be positive", epos.ErrIllegalArgument)
	}
	return &Channel{
		logger: log.WithFields(log.Fields{"service": "[SERIAL]", "channel": address}),
		config: serial.Config{
			Address:  address,
			BaudRate: settings.BaudRate,
			DataBits: settings.DataBits,
			StopBits: settings.StopBits,
			Parity:   settings.Parity,
			Timeout:  time.Duration(settings.ReadTimeoutMs) * time.Millisecond,
		},
		open: openSerial,
		rx:   fifo.NewFifo(rxBufferSize),
	}, nil
}

func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		return nil
	}
	port, err := c.open(&c.config)
	if err != nil {
		return fmt.Errorf("%w : %v", epos.ErrPortOpen, err)
	}
	c.logger.WithField("baudrate", c.config.BaudRate).Debug("port opened")
	c.port = port
	c.rx.Reset()
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.handleReception(port, c.stop)
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	port := c.port
	if port == nil {
		c.mu.Unlock()
		return nil
	}
	close(c.stop)
	c.port = nil
	c.rx.Reset()
	c.mu.Unlock()

	err := port.Close()
	c.wg.Wait()
	c.logger.Debug("port closed")
	return err
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port != nil
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return 0, epos.ErrPortClosed
	}
	c.logger.WithField("raw", p).Trace("[TX]")
	return port.Write(p)
}

func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx.Occupied()
}

func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return 0, epos.ErrPortClosed
	}
	return c.rx.Read(p), nil
}

func (c *Channel) Subscribe(listener channel.Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
	return nil
}

// Handle incoming traffic, every chunk read from the port is buffered
// and then signaled once
func (c *Channel) handleReception(port io.Reader, stop chan struct{}) {
	defer c.wg.Done()
	buf := make([]byte, rxChunkSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(buf)
		if n > 0 {
			c.mu.Lock()
			before := c.rx.Dropped()
			c.rx.Write(buf[:n])
			dropped := c.rx.Dropped() - before
			listener := c.listener
			c.mu.Unlock()
			if dropped > 0 {
				c.logger.WithField("dropped", dropped).Warn("receive buffer full")
			}
			c.logger.WithField("raw", buf[:n]).Trace("[RX]")
			if listener != nil {
				listener.DataReady()
			}
		}
		if err == nil || errors.Is(err, serial.ErrTimeout) {
			continue
		}
		select {
		case <-stop:
		default:
			c.logger.WithError(err).Error("listening routine has closed")
		}
		return
	}
}
