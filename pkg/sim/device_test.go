package sim

import (
	"context"
	"testing"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/channel/virtual"
	"github.com/samsamfire/goepos/pkg/frame"
	"github.com/samsamfire/goepos/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(t *testing.T, d *Device, f frame.Frame, opts ...transaction.Option) epos.Result {
	ch := virtual.New("sim", d)
	require.Nil(t, ch.Open())
	tx, err := transaction.New(ch, f, opts...)
	require.Nil(t, err)
	require.Nil(t, ch.Subscribe(tx))
	return tx.Run(context.Background())
}

func TestRegistered(t *testing.T) {
	ch, err := channel.New("sim", "sim0", channel.DefaultSettings())
	assert.Nil(t, err)
	assert.IsType(t, &virtual.Channel{}, ch)
}

func TestReadStatus(t *testing.T) {
	d := NewDevice()
	res := exchange(t, d, frame.NewReadFrame(0x6041, 0))
	assert.Equal(t, epos.StatusSuccess, res.Status)
	assert.EqualValues(t, StateSwitchOnDisabled, res.Value)
	assert.Equal(t, []Entry{{Read: true, Index: 0x6041, Value: 0x140}}, d.Log())
}

func TestResponseBlock(t *testing.T) {
	block := responseBlock(0x0137)
	assert.Len(t, block, 11)
	word, err := transaction.DecodeWord(block)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x0137, word)
}

func TestPowerStateMachine(t *testing.T) {
	d := NewDevice()
	d.SetStatus(StateFault)
	for _, step := range []struct {
		control  int32
		expected uint16
	}{
		{cmdShutdown, StateFault},
		{cmdFaultReset, StateSwitchOnDisabled},
		{cmdShutdown, StateReadyToSwitchOn},
		{cmdEnable, StateOperationEnabled},
		{cmdQuickStop, StateQuickStopActive},
		{cmdEnable, StateQuickStopActive},
		{cmdDisableVoltage, StateSwitchOnDisabled},
	} {
		res := exchange(t, d, frame.NewWriteFrame(0x6040, step.control))
		assert.Equal(t, epos.StatusSuccess, res.Status)
		assert.Equal(t, step.expected, d.Status(), "after control x%x", step.control)
	}
	assert.EqualValues(t, cmdDisableVoltage, d.Object(0x6040))
	assert.Len(t, d.Log(), 7)
	d.ClearLog()
	assert.Empty(t, d.Log())
}

func TestObjectStore(t *testing.T) {
	d := NewDevice()
	assert.Equal(t, epos.StatusSuccess, exchange(t, d, frame.NewWriteFrame(0x607F, 8000)).Status)
	assert.EqualValues(t, 8000, d.Object(0x607F))
	res := exchange(t, d, frame.NewReadFrame(0x607F, 0))
	assert.Equal(t, epos.StatusSuccess, res.Status)
	// Reads are reported through the status word mask
	assert.EqualValues(t, 8000&0x417F, res.Value)
}

func TestBadChecksum(t *testing.T) {
	d := NewDevice()
	f := frame.NewReadFrame(0x6041, 0)
	corrupted := append(frame.Frame{}, f...)
	corrupted[6] ^= 0xFF
	res := exchange(t, d, corrupted)
	assert.Equal(t, epos.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Error(), epos.ErrCommunication)
	assert.Empty(t, d.Log())

	// Device is ready for the next exchange
	assert.Equal(t, epos.StatusSuccess, exchange(t, d, f).Status)
}

func TestFaultInjection(t *testing.T) {
	t.Run("nack", func(t *testing.T) {
		d := NewDevice()
		d.Nack()
		res := exchange(t, d, frame.NewWriteFrame(0x6040, cmdShutdown))
		assert.Equal(t, epos.StatusFailed, res.Status)
		assert.Equal(t, StateSwitchOnDisabled, d.Status())
		res = exchange(t, d, frame.NewWriteFrame(0x6040, cmdShutdown))
		assert.Equal(t, epos.StatusSuccess, res.Status)
		assert.Equal(t, StateReadyToSwitchOn, d.Status())
	})

	for _, phase := range []Phase{PhaseOpcode, PhaseRequest, PhaseAck} {
		t.Run("silent in "+phase.String(), func(t *testing.T) {
			d := NewDevice()
			d.Silent(phase)
			res := exchange(t, d, frame.NewReadFrame(0x6041, 0), transaction.WithTimeout(10*time.Millisecond))
			assert.Equal(t, epos.StatusTimedOut, res.Status)
			assert.ErrorIs(t, res.Error(), epos.ErrTimeout)
			d.Silent(PhaseNone)
			assert.Equal(t, epos.StatusSuccess, exchange(t, d, frame.NewReadFrame(0x6041, 0)).Status)
		})
	}
}

func TestUnknownOpcode(t *testing.T) {
	d := NewDevice()
	assert.Equal(t, []byte{frame.Nack}, d.Receive([]byte{0x42}))
	assert.Equal(t, []byte{frame.Ack}, d.Receive([]byte{frame.OpcodeRead}))
}
