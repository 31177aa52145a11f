// Package sim simulates an EPOS controller at the other end of a serial line.
//
// A [Device] answers the byte exchanges of the host, checks request
// checksums, stores written objects and runs the power state machine on
// control word writes. It plugs into a virtual channel as its peer, and
// the channel interface "sim" gives a ready to use simulated line.
package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/samsamfire/goepos/internal/crc"
	"github.com/samsamfire/goepos/pkg/channel"
	"github.com/samsamfire/goepos/pkg/channel/virtual"
	"github.com/samsamfire/goepos/pkg/frame"
	log "github.com/sirupsen/logrus"
)

func init() {
	channel.RegisterInterface("sim", NewSimChannel)
}

// NewSimChannel creates a virtual channel with a fresh [Device] behind it
func NewSimChannel(name string, _ channel.Settings) (channel.Channel, error) {
	return virtual.New(name, NewDevice()), nil
}

const (
	objectStatusWord  uint16 = 0x6041
	objectControlWord uint16 = 0x6040
)

// Phase of an exchange, as seen by the device
type Phase uint8

const (
	PhaseNone     Phase = iota
	PhaseOpcode         // Waiting for the opcode byte
	PhaseRequest        // Waiting for length, payload and checksum
	PhaseAck            // Waiting for the host acknowledgement
	PhaseFinalAck       // Waiting for the last acknowledgement
)

var phaseDescription = map[Phase]string{
	PhaseNone:     "NONE",
	PhaseOpcode:   "OPCODE",
	PhaseRequest:  "REQUEST",
	PhaseAck:      "ACK",
	PhaseFinalAck: "FINAL-ACK",
}

func (p Phase) String() string {
	return phaseDescription[p]
}

// Entry is one completed request in the device log
type Entry struct {
	Read     bool
	Index    uint16
	Subindex uint8
	Value    int32
}

func (e Entry) String() string {
	if e.Read {
		return fmt.Sprintf("READ x%x|x%x -> x%x", e.Index, e.Subindex, e.Value)
	}
	return fmt.Sprintf("WRITE x%x|x%x = %d", e.Index, e.Subindex, e.Value)
}

type Device struct {
	logger   *log.Entry
	mu       sync.Mutex
	phase    Phase
	opcode   byte
	response []byte
	status   uint16
	objects  map[uint16]int32
	silent   Phase
	nack     bool
	log      []Entry
}

// NewDevice returns a device in the switch on disabled state
func NewDevice() *Device {
	return &Device{
		logger:  log.WithField("service", "[SIM]"),
		phase:   PhaseOpcode,
		status:  StateSwitchOnDisabled,
		objects: make(map[uint16]int32),
	}
}

// SetStatus forces the raw status word
func (d *Device) SetStatus(raw uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = raw
}

func (d *Device) Status() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Object returns the last value written to index
func (d *Device) Object(index uint16) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objects[index]
}

// Silent makes the device drop every exchange reaching phase, without
// answering. [PhaseNone] restores normal behaviour.
func (d *Device) Silent(phase Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = phase
}

// Nack makes the device refuse the next request
func (d *Device) Nack() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nack = true
}

// Log returns the requests accepted so far, in order
func (d *Device) Log() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := make([]Entry, len(d.log))
	copy(entries, d.log)
	return entries
}

func (d *Device) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// Receive implements [virtual.Peer]
func (d *Device) Receive(p []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(p) == 0 {
		return nil
	}
	if d.silent != PhaseNone && d.silent == d.phase {
		d.logger.Debugf("silent in phase %v", d.phase)
		d.phase = PhaseOpcode
		return nil
	}

	switch d.phase {
	case PhaseOpcode:
		if p[0] != frame.OpcodeRead && p[0] != frame.OpcodeWrite {
			d.logger.Warnf("unknown opcode x%x", p[0])
			return []byte{frame.Nack}
		}
		d.opcode = p[0]
		d.phase = PhaseRequest
		return []byte{frame.Ack}

	case PhaseRequest:
		d.phase = PhaseOpcode
		if d.nack {
			d.nack = false
			return []byte{frame.Nack}
		}
		f, err := d.checkRequest(p)
		if err != nil {
			d.logger.Warnf("request refused : %v", err)
			return []byte{frame.Nack}
		}
		d.response = d.handle(f)
		d.phase = PhaseAck
		return []byte{frame.Ack, frame.OpcodeResponse}

	case PhaseAck:
		if p[0] != frame.Ack {
			d.phase = PhaseOpcode
			return nil
		}
		d.phase = PhaseFinalAck
		return d.response

	case PhaseFinalAck:
		d.phase = PhaseOpcode
	}
	return nil
}

// checkRequest rebuilds the frame of request p and verifies its length and checksum
func (d *Device) checkRequest(p []byte) (frame.Frame, error) {
	expected := frame.ReadLength - 3
	if d.opcode == frame.OpcodeWrite {
		expected = frame.WriteLength - 3
	}
	if len(p) != expected || int(p[0]+1)*2 != expected-3 {
		return nil, fmt.Errorf("bad length %d for opcode x%x", len(p), d.opcode)
	}
	f := make(frame.Frame, 0, len(p)+3)
	f = append(f, d.opcode)
	f = append(f, p...)
	f = append(f, frame.Ack, frame.Nack)
	received := f.Checksum()
	f[len(f)-4], f[len(f)-3] = 0, 0
	computed := crc.Block(f, (len(f)-2)/2)
	if received != computed {
		return nil, fmt.Errorf("bad checksum x%x, expected x%x", received, computed)
	}
	binary.LittleEndian.PutUint16(f[len(f)-4:], received)
	return f, nil
}

// handle applies the request and returns the response block
func (d *Device) handle(f frame.Frame) []byte {
	index := f.Index()
	entry := Entry{Read: f.IsRead(), Index: index, Subindex: f.Subindex()}
	var data int32
	if f.IsRead() {
		data = d.objects[index]
		if index == objectStatusWord {
			data = int32(d.status)
		}
	} else {
		data = f.Data()
		d.objects[index] = data
		if index == objectControlWord {
			previous := d.status
			d.status = nextState(d.status, data)
			d.logger.Debugf("control word x%x : status x%x -> x%x", data, previous, d.status)
		}
	}
	entry.Value = data
	d.log = append(d.log, entry)
	return responseBlock(data)
}

// responseBlock builds [len-1, error code (4), data (4), crc (2)]
func responseBlock(data int32) []byte {
	buf := make([]byte, 12)
	buf[0] = frame.OpcodeResponse
	buf[1] = 0x03
	binary.LittleEndian.PutUint32(buf[6:], uint32(data))
	binary.LittleEndian.PutUint16(buf[10:], crc.Block(buf, 6))
	return buf[1:]
}
