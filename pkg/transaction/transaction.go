// Package transaction runs one request/response exchange with an EPOS
// controller over a [channel.Channel].
//
// An exchange is a fixed sequence of steps. The host sends the opcode, the
// device acknowledges, the host sends the request, the device answers with
// an acknowledgement, the host acknowledges, the device sends its response
// block and the host acknowledges once more. Read and write exchanges only
// differ by the frame they carry.
//
// A [Transaction] can be driven two ways: by polling [Transaction.Advance]
// from a periodic loop, or by calling [Transaction.Run] which suspends
// until the device answers or the phase deadline elapses.
package transaction

import (
	"encoding/binary"
	"fmt"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/frame"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 1000 * time.Millisecond

	// Only the bits of the status word describing the power state
	StatusMask uint16 = 0x417F

	// Minimum size of a response block carrying a data word
	minResponseLength = 7
)

type Transaction struct {
	logger   *log.Entry
	ch       channel.Channel
	frame    frame.Frame
	timeout  time.Duration
	step     Step
	endStep  Step
	status   epos.Status
	err      error
	raw      uint16
	deadline time.Time
	ready    chan struct{}
}

type Option func(t *Transaction)

// WithTimeout sets the time allowed for each await phase
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transaction) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(t *Transaction) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a transaction carrying f over ch. Nothing is sent before the
// first call to Advance or Run.
func New(ch channel.Channel, f frame.Frame, opts ...Option) (*Transaction, error) {
	if ch == nil || (len(f) != frame.ReadLength && len(f) != frame.WriteLength) {
		return nil, epos.ErrIllegalArgument
	}
	t := &Transaction{
		logger:  log.WithField("service", "[TX]"),
		ch:      ch,
		frame:   f,
		timeout: DefaultTimeout,
		ready:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// DataReady latches the arrival of bytes on the channel, it never blocks.
// Several notifications before the next await phase count as one.
func (t *Transaction) DataReady() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// SetFrame replaces the carried frame so the transaction can be reused.
// The new frame must have the same shape and no exchange may be running.
func (t *Transaction) SetFrame(f frame.Frame) error {
	if t.step != StepStart || len(f) != len(t.frame) || f[0] != t.frame[0] {
		return epos.ErrIllegalArgument
	}
	t.frame = f
	return nil
}

func (t *Transaction) Frame() frame.Frame {
	return t.frame
}

// Step returns the current step, [StepStart] when idle or after completion
func (t *Transaction) Step() Step {
	return t.step
}

func (t *Transaction) Status() epos.Status {
	return t.status
}

// Value returns the masked status word of a successful read, or the data
// of a write frame
func (t *Transaction) Value() int32 {
	if t.frame.IsRead() {
		return int32(t.raw & StatusMask)
	}
	return t.frame.Data()
}

// Raw returns the unmasked word of the last successful read
func (t *Transaction) Raw() uint16 {
	return t.raw
}

// Result returns a summary of the last completed exchange
func (t *Transaction) Result() epos.Result {
	res := epos.Result{Status: t.status, Step: int(t.endStep), Value: t.Value(), Err: t.err}
	switch t.status {
	case epos.StatusSuccess:
		res.Message = "operation finished successfully"
		res.Err = nil
	case epos.StatusFailed, epos.StatusTimedOut:
		res.Message = fmt.Sprintf("%v : %v", t.frame, t.err)
	}
	return res
}

// Advance makes as much progress as possible without blocking. Await steps
// look at the data ready latch and at the phase deadline against now.
// It returns the status after the step was processed.
func (t *Transaction) Advance(now time.Time) epos.Status {
	ev := EventNone
	if t.step.Awaiting() {
		ev = t.poll(now)
	}
	return t.advance(now, ev)
}

// poll looks at the latch then at the deadline, an elapsed deadline wins
// even when data arrived.
func (t *Transaction) poll(now time.Time) Event {
	ev := EventNone
	select {
	case <-t.ready:
		ev = EventDataReady
	default:
	}
	if now.After(t.deadline) {
		ev = EventDeadline
	}
	return ev
}

// advance processes the current step. Awaiting steps use the given event,
// every other step performs its side effect to obtain one.
func (t *Transaction) advance(now time.Time, ev Event) epos.Status {
	current := t.step
	if !current.Awaiting() {
		ev = t.effect(now)
	} else if ev == EventDeadline {
		t.err = fmt.Errorf("%w : no answer in step %v", epos.ErrTimeout, current)
	}
	t.step = next(current, ev)
	if t.step != current {
		t.logger.Tracef("%v : %v -> %v (%v)", t.frame, current, t.step, ev)
	}
	return t.status
}

// effect runs the side effect of a non awaiting step
func (t *Transaction) effect(now time.Time) Event {
	switch t.step {
	case StepStart:
		t.status = epos.StatusProcessing
		t.err = nil
		t.raw = 0
		t.endStep = StepStart
		t.clear()
		t.logger.Debugf("%v : start", t.frame)
		return EventDone

	case StepSendOpcode:
		return t.send(now, t.frame.Opcode())

	case StepDrainOpcodeAck:
		if _, err := t.drain(); err != nil {
			return t.fail(err)
		}
		return EventDone

	case StepSendRequest:
		return t.send(now, t.frame.Request())

	case StepCheckResponse:
		resp, err := t.drain()
		if err != nil {
			return t.fail(err)
		}
		if len(resp) == 0 || resp[0] != frame.Ack {
			t.err = fmt.Errorf("%w : request not acknowledged %x", epos.ErrCommunication, resp)
			return EventNack
		}
		return EventDone

	case StepSendAck:
		return t.send(now, t.frame.Ack())

	case StepDrainData:
		resp, err := t.drain()
		if err != nil {
			return t.fail(err)
		}
		if !t.frame.IsRead() {
			return EventDone
		}
		raw, err := DecodeWord(resp)
		if err != nil {
			t.err = err
			return EventDecodeError
		}
		t.raw = raw
		return EventDone

	case StepSendFinalAck:
		if _, err := t.ch.Write(t.frame.Ack()); err != nil {
			return t.fail(err)
		}
		return EventDone

	case StepSuccess:
		return t.terminate(epos.StatusSuccess)

	case StepFailed:
		if t.err == nil {
			t.err = epos.ErrCommunication
		}
		return t.terminate(epos.StatusFailed)

	case StepTimedOut:
		if t.err == nil {
			t.err = epos.ErrTimeout
		}
		return t.terminate(epos.StatusTimedOut)
	}
	return EventNone
}

// send writes p and arms the deadline of the following await phase
func (t *Transaction) send(now time.Time, p []byte) Event {
	if _, err := t.ch.Write(p); err != nil {
		return t.fail(err)
	}
	t.deadline = now.Add(t.timeout)
	return EventDone
}

// drain reads everything buffered on the channel. The latch is cleared
// before reading so that no notification outlives the bytes it announced.
func (t *Transaction) drain() ([]byte, error) {
	t.clear()
	buf := make([]byte, t.ch.Buffered())
	n, err := t.ch.Read(buf)
	return buf[:n], err
}

func (t *Transaction) clear() {
	select {
	case <-t.ready:
	default:
	}
}

func (t *Transaction) fail(err error) Event {
	t.err = fmt.Errorf("%w : %v", epos.ErrCommunication, err)
	return EventIOError
}

func (t *Transaction) terminate(status epos.Status) Event {
	t.status = status
	t.endStep = t.step
	if status == epos.StatusSuccess {
		t.logger.Debugf("%v : success (value %d)", t.frame, t.Value())
	} else {
		t.logger.Warnf("%v : %v", t.frame, t.err)
	}
	return EventDone
}

// DecodeWord extracts the 16 bit data word of a response block, bytes 5
// and 6 little endian. The result is not masked.
func DecodeWord(resp []byte) (uint16, error) {
	if len(resp) < minResponseLength {
		return 0, fmt.Errorf("%w : %d bytes received, need %d", epos.ErrDecode, len(resp), minResponseLength)
	}
	return binary.LittleEndian.Uint16(resp[5:7]), nil
}
