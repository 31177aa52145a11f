package controller

import (
	"context"
	"fmt"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/frame"
	"github.com/samsamfire/goepos/pkg/transaction"
)

var _ epos.Motor = (*Controller)(nil)

// EnableStep is the phase of an [EnableSequence]
type EnableStep uint8

const (
	EnableOpen            EnableStep = 0
	EnableReadStatus      EnableStep = 1
	EnableShutdown        EnableStep = 2
	EnableSwitchOn        EnableStep = 3
	EnableSetMode         EnableStep = 4
	EnableMaxVelocity     EnableStep = 5
	EnableMaxAcceleration EnableStep = 6
	EnableClearQuickStop  EnableStep = 7
	EnableResetFault      EnableStep = 8
	EnableSucceeded       EnableStep = 20
	EnableFailed          EnableStep = 30
)

var enableStepDescription = map[EnableStep]string{
	EnableOpen:            "OPEN",
	EnableReadStatus:      "READ-STATUS",
	EnableShutdown:        "SHUTDOWN",
	EnableSwitchOn:        "SWITCH-ON",
	EnableSetMode:         "SET-MODE",
	EnableMaxVelocity:     "MAX-VELOCITY",
	EnableMaxAcceleration: "MAX-ACCELERATION",
	EnableClearQuickStop:  "CLEAR-QUICK-STOP",
	EnableResetFault:      "RESET-FAULT",
	EnableSucceeded:       "SUCCEEDED",
	EnableFailed:          "FAILED",
}

func (s EnableStep) String() string {
	description, ok := enableStepDescription[s]
	if ok {
		return fmt.Sprintf("%d:%s", uint8(s), description)
	}
	return fmt.Sprintf("%d:UNKNOWN", uint8(s))
}

func (s EnableStep) Terminal() bool {
	return s == EnableSucceeded || s == EnableFailed
}

// Step reached once the write of a step succeeded
var afterWrite = map[EnableStep]EnableStep{
	EnableShutdown:        EnableSwitchOn,
	EnableSwitchOn:        EnableSetMode,
	EnableSetMode:         EnableMaxVelocity,
	EnableMaxVelocity:     EnableMaxAcceleration,
	EnableMaxAcceleration: EnableSucceeded,
	EnableClearQuickStop:  EnableReadStatus,
	EnableResetFault:      EnableReadStatus,
}

// EnableSequence brings the controller from any known power state to
// operation enabled. Every step but the first runs one transaction.
//
// It can be polled with Advance or run to completion with Run. The
// sequence holds the controller until it terminates.
type EnableSequence struct {
	c           *Controller
	step        EnableStep
	tx          *transaction.Transaction
	statusReads int
	lastWord    uint16
	result      epos.Result
}

// NewEnableSequence reserves the controller for an enable sequence.
// It fails with [epos.ErrBusy] while another operation is running.
func (c *Controller) NewEnableSequence() (*EnableSequence, error) {
	if !c.busy.TryLock() {
		return nil, epos.ErrBusy
	}
	return &EnableSequence{c: c, result: epos.Result{Status: epos.StatusIdle}}, nil
}

func (s *EnableSequence) Step() EnableStep {
	return s.step
}

func (s *EnableSequence) Result() epos.Result {
	return s.result
}

// StatusReads returns the number of status words read so far
func (s *EnableSequence) StatusReads() int {
	return s.statusReads
}

// Advance makes as much progress as possible without blocking and
// returns the status of the sequence.
func (s *EnableSequence) Advance(now time.Time) epos.Status {
	if s.step.Terminal() {
		return s.result.Status
	}
	if s.step == EnableOpen {
		s.openChannel()
		return s.result.Status
	}
	if s.tx == nil && !s.prepare() {
		return s.result.Status
	}
	s.tx.Advance(now)
	if s.tx.Step() == transaction.StepStart && s.tx.Status().Terminal() {
		s.complete(s.tx.Result())
	}
	return s.result.Status
}

// Run drives the sequence until it terminates, each transaction
// suspending while it waits for the controller.
func (s *EnableSequence) Run(ctx context.Context) epos.Result {
	for !s.step.Terminal() {
		if s.step == EnableOpen {
			s.openChannel()
			continue
		}
		if s.tx == nil && !s.prepare() {
			continue
		}
		s.complete(s.tx.Run(ctx))
	}
	return s.result
}

// Abort stops a sequence that has not terminated. The channel is closed,
// the controller released and the sequence ends in [EnableFailed] with
// [epos.ErrAborted]. It does nothing on a terminated sequence.
func (s *EnableSequence) Abort() {
	if s.step.Terminal() {
		return
	}
	s.fail(epos.ErrAborted)
}

func (s *EnableSequence) openChannel() {
	s.result.Status = epos.StatusProcessing
	if err := s.c.open(); err != nil {
		s.fail(err)
		return
	}
	s.moveTo(EnableReadStatus)
}

// prepare starts the transaction of the current step
func (s *EnableSequence) prepare() bool {
	var f frame.Frame
	switch s.step {
	case EnableReadStatus:
		if s.statusReads >= s.c.maxStatusReads {
			s.fail(fmt.Errorf("%w : status word x%x after %d reads", epos.ErrUnknownState, s.lastWord, s.statusReads))
			return false
		}
		f = frame.NewReadFrame(StatusWord, 0)
	case EnableShutdown:
		f = frame.NewWriteFrame(ControlWord, CommandShutdown)
	case EnableSwitchOn:
		f = frame.NewWriteFrame(ControlWord, CommandEnable)
	case EnableSetMode:
		f = frame.NewWriteFrame(OperationMode, ModeVelocity)
	case EnableMaxVelocity:
		f = frame.NewWriteFrame(MaxVelocity, s.c.maxVelocity)
	case EnableMaxAcceleration:
		f = frame.NewWriteFrame(MaxAcceleration, s.c.maxAcceleration)
	case EnableClearQuickStop:
		f = frame.NewWriteFrame(ControlWord, CommandDisableVoltage)
	case EnableResetFault:
		f = frame.NewWriteFrame(ControlWord, CommandFaultReset)
	}
	tx, err := s.c.begin(f)
	if err != nil {
		s.fail(err)
		return false
	}
	s.tx = tx
	return true
}

// complete handles the outcome of the transaction of the current step
func (s *EnableSequence) complete(res epos.Result) {
	s.tx = nil
	s.c.end()
	s.result.Value = res.Value
	if res.Status != epos.StatusSuccess {
		s.fail(res.Error())
		return
	}
	if s.step != EnableReadStatus {
		s.moveTo(afterWrite[s.step])
		return
	}
	s.statusReads++
	s.lastWord = uint16(res.Value)
	next, ok := statusTransition(s.lastWord)
	if !ok {
		s.c.logger.Warnf("unhandled status word x%x, reading again", s.lastWord)
		return
	}
	s.c.logger.Debugf("status word x%x (%v)", s.lastWord, PowerState(s.lastWord))
	s.moveTo(next)
}

func (s *EnableSequence) moveTo(step EnableStep) {
	s.c.logger.Debugf("enable : %v -> %v", s.step, step)
	s.step = step
	if step == EnableSucceeded {
		s.result.Status = epos.StatusSuccess
		s.result.Step = int(EnableSucceeded)
		s.result.Message = "operation finished successfully"
		s.c.logger.Info("controller enabled")
		s.finish()
	}
}

func (s *EnableSequence) fail(err error) {
	s.c.logger.Warnf("enable failed in step %v : %v", s.step, err)
	s.result.Status = epos.StatusFailed
	s.result.Step = int(s.step)
	s.result.Message = err.Error()
	s.result.Err = err
	s.step = EnableFailed
	s.finish()
}

// finish releases the channel and the controller
func (s *EnableSequence) finish() {
	if s.tx != nil {
		s.tx = nil
		s.c.end()
	}
	s.c.close()
	s.c.busy.Unlock()
}
