// Package frame builds the request frames sent to an EPOS controller over RS-232.
//
// Read request (10 bytes):
//
//	| 0x10 | 0x01 | index lo | index hi | subindex | node | crc lo | crc hi | 'O' | 'F' |
//
// Write request (14 bytes):
//
//	| 0x11 | 0x03 | index lo | index hi | 0x00 | node | data (4, LE) | crc lo | crc hi | 'O' | 'F' |
//
// The checksum covers every word before the two marker bytes, the checksum
// field itself being zero while it is computed.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/samsamfire/goepos/internal/crc"
)

const (
	OpcodeRead  byte = 0x10
	OpcodeWrite byte = 0x11

	// Response opcode sent back by the controller
	OpcodeResponse byte = 0x00

	// Node id of the single controller on the line
	NodeId byte = 0x02

	Ack  byte = 0x4F // 'O'
	Nack byte = 0x46 // 'F'

	ReadLength  = 10
	WriteLength = 14
)

// Frame is a request ready to be sent. It must not be modified once built.
type Frame []byte

// NewReadFrame builds the request for reading object index/subindex.
func NewReadFrame(index int16, subindex uint8) Frame {
	f := make(Frame, ReadLength)
	f[0] = OpcodeRead
	f[1] = 0x01 // length-1
	binary.LittleEndian.PutUint16(f[2:], uint16(index))
	f[4] = subindex
	f[5] = NodeId
	binary.LittleEndian.PutUint16(f[6:], crc.Block(f, 4))
	f[8] = Ack
	f[9] = Nack
	return f
}

// NewWriteFrame builds the request for writing data to object index, subindex 0.
func NewWriteFrame(index int16, data int32) Frame {
	f := make(Frame, WriteLength)
	f[0] = OpcodeWrite
	f[1] = 0x03 // length-1
	binary.LittleEndian.PutUint16(f[2:], uint16(index))
	f[4] = 0x00
	f[5] = NodeId
	binary.LittleEndian.PutUint32(f[6:], uint32(data))
	binary.LittleEndian.PutUint16(f[10:], crc.Block(f, 6))
	f[12] = Ack
	f[13] = Nack
	return f
}

// Opcode returns the first byte, sent alone to open the exchange
func (f Frame) Opcode() []byte {
	return f[0:1]
}

// Request returns the bytes sent once the opcode was acknowledged :
// length, addressing, payload and checksum.
func (f Frame) Request() []byte {
	return f[1 : len(f)-2]
}

// Ack returns the acknowledgement marker as a one byte slice
func (f Frame) Ack() []byte {
	return f[len(f)-2 : len(f)-1]
}

func (f Frame) IsRead() bool {
	return len(f) == ReadLength && f[0] == OpcodeRead
}

func (f Frame) Index() uint16 {
	return binary.LittleEndian.Uint16(f[2:4])
}

func (f Frame) Subindex() uint8 {
	return f[4]
}

// Data returns the payload of a write frame, 0 for a read frame
func (f Frame) Data() int32 {
	if len(f) != WriteLength {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(f[6:10]))
}

// Checksum returns the crc stored in the frame
func (f Frame) Checksum() uint16 {
	return binary.LittleEndian.Uint16(f[len(f)-4 : len(f)-2])
}

func (f Frame) String() string {
	if f.IsRead() {
		return fmt.Sprintf("READ x%x|x%x", f.Index(), f.Subindex())
	}
	return fmt.Sprintf("WRITE x%x|x%x = %d", f.Index(), f.Subindex(), f.Data())
}
