// Package controller drives an EPOS motor controller through its power
// states over a byte channel.
//
// A [Controller] owns the channel for the duration of each operation: it
// opens it, runs one or more transactions and closes it whatever the
// outcome. A controller has a single writer: only one operation may run at
// a time and concurrent callers get [epos.ErrBusy]. An [EnableSequence]
// holds the controller from [Controller.NewEnableSequence] until it
// terminates or [EnableSequence.Abort] is called, so a caller polling it
// with Advance must either drive it to the end or abort it.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/frame"
	"github.com/samsamfire/goepos/pkg/transaction"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxVelocity     int32 = 8000
	DefaultMaxAcceleration int32 = 10000
	DefaultMaxStatusReads        = 16
)

type Controller struct {
	logger          *log.Entry
	ch              channel.Channel
	timeout         time.Duration
	maxVelocity     int32
	maxAcceleration int32
	maxStatusReads  int
	busy            sync.Mutex
	mu              sync.Mutex
	active          *transaction.Transaction
}

type Option func(c *Controller)

func WithLogger(logger *log.Entry) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the deadline of every await phase of a transaction
func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLimits sets the velocity and acceleration limits written by Enable
func WithLimits(maxVelocity int32, maxAcceleration int32) Option {
	return func(c *Controller) {
		c.maxVelocity = maxVelocity
		c.maxAcceleration = maxAcceleration
	}
}

// WithMaxStatusReads bounds the number of status reads of a single Enable
func WithMaxStatusReads(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxStatusReads = n
		}
	}
}

// New creates a controller talking over ch. The channel may be closed, it
// is opened by each operation.
func New(ch channel.Channel, opts ...Option) (*Controller, error) {
	if ch == nil {
		return nil, epos.ErrIllegalArgument
	}
	c := &Controller{
		logger:          log.WithField("service", "[EPOS]"),
		ch:              ch,
		timeout:         transaction.DefaultTimeout,
		maxVelocity:     DefaultMaxVelocity,
		maxAcceleration: DefaultMaxAcceleration,
		maxStatusReads:  DefaultMaxStatusReads,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := ch.Subscribe(c); err != nil {
		return nil, err
	}
	return c, nil
}

// DataReady relays the channel notification to the running transaction
func (c *Controller) DataReady() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.DataReady()
	}
}

// Enable brings the controller to the operation enabled state in
// velocity mode, with the configured limits.
func (c *Controller) Enable(ctx context.Context) epos.Result {
	seq, err := c.NewEnableSequence()
	if err != nil {
		return epos.Result{Status: epos.StatusFailed, Message: err.Error(), Err: err}
	}
	return seq.Run(ctx)
}

// Disable removes the voltage from the motor
func (c *Controller) Disable(ctx context.Context) epos.Result {
	return c.single(ctx, frame.NewWriteFrame(ControlWord, CommandDisableVoltage))
}

// SetSpeed writes the velocity setpoint matching speed, see [RPM]
func (c *Controller) SetSpeed(ctx context.Context, speed float64) epos.Result {
	rpm := RPM(speed)
	c.logger.Debugf("speed %v -> %v rpm", speed, rpm)
	return c.single(ctx, frame.NewWriteFrame(VelocitySetpoint, rpm))
}

// ReadStatus reads the status word and returns the power state it describes
func (c *Controller) ReadStatus(ctx context.Context) (PowerState, error) {
	res := c.single(ctx, frame.NewReadFrame(StatusWord, 0))
	if err := res.Error(); err != nil {
		return 0, err
	}
	return PowerState(res.Value), nil
}

// single runs one transaction between an open and a close of the channel
func (c *Controller) single(ctx context.Context, f frame.Frame) epos.Result {
	if !c.busy.TryLock() {
		return epos.Result{Status: epos.StatusFailed, Message: epos.ErrBusy.Error(), Err: epos.ErrBusy}
	}
	defer c.busy.Unlock()
	if err := c.open(); err != nil {
		return epos.Result{Status: epos.StatusFailed, Message: err.Error(), Err: err}
	}
	defer c.close()
	tx, err := c.begin(f)
	if err != nil {
		return epos.Result{Status: epos.StatusFailed, Message: err.Error(), Err: err}
	}
	defer c.end()
	return tx.Run(ctx)
}

func (c *Controller) open() error {
	if c.ch.IsOpen() {
		return nil
	}
	if err := c.ch.Open(); err != nil {
		c.logger.Errorf("failed to open channel : %v", err)
		return fmt.Errorf("%w : %v", epos.ErrPortOpen, err)
	}
	return nil
}

func (c *Controller) close() {
	if err := c.ch.Close(); err != nil {
		c.logger.Warnf("failed to close channel : %v", err)
	}
}

// begin creates the transaction carrying f and makes it the target of
// data ready notifications
func (c *Controller) begin(f frame.Frame) (*transaction.Transaction, error) {
	tx, err := transaction.New(c.ch, f,
		transaction.WithTimeout(c.timeout),
		transaction.WithLogger(c.logger.WithField("frame", f.String())),
	)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.active = tx
	c.mu.Unlock()
	return tx, nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}
