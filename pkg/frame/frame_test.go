package frame

import (
	"testing"

	"github.com/samsamfire/goepos/internal/crc"
	"github.com/stretchr/testify/assert"
)

func TestNewReadFrame(t *testing.T) {
	vectors := []struct {
		name     string
		index    int16
		subindex uint8
		expected Frame
	}{
		{"status word", 0x6041, 0, Frame{0x10, 0x01, 0x41, 0x60, 0x00, 0x02, 0xD4, 0x13, 0x4F, 0x46}},
		{"max velocity", 0x607F, 0, Frame{0x10, 0x01, 0x7F, 0x60, 0x00, 0x02, 0x67, 0x9D, 0x4F, 0x46}},
		{"identity subindex", 0x1018, 3, Frame{0x10, 0x01, 0x18, 0x10, 0x03, 0x02, 0xC3, 0x18, 0x4F, 0x46}},
	}
	for _, v := range vectors {
		t.Run(v.name, func(t *testing.T) {
			f := NewReadFrame(v.index, v.subindex)
			assert.Equal(t, v.expected, f)
			assert.Len(t, f, ReadLength)
			assert.True(t, f.IsRead())
			assert.EqualValues(t, v.index, f.Index())
			assert.Equal(t, v.subindex, f.Subindex())
			assert.EqualValues(t, 0, f.Data())
		})
	}
}

func TestNewWriteFrame(t *testing.T) {
	vectors := []struct {
		name     string
		index    int16
		data     int32
		expected Frame
	}{
		{"switch on", 0x6040, 0x0F, Frame{0x11, 0x03, 0x40, 0x60, 0x00, 0x02, 0x0F, 0x00, 0x00, 0x00, 0x30, 0x03, 0x4F, 0x46}},
		{"velocity mode", 0x6060, -2, Frame{0x11, 0x03, 0x60, 0x60, 0x00, 0x02, 0xFE, 0xFF, 0xFF, 0xFF, 0xCD, 0x43, 0x4F, 0x46}},
		{"setpoint", 0x206B, 1841, Frame{0x11, 0x03, 0x6B, 0x20, 0x00, 0x02, 0x31, 0x07, 0x00, 0x00, 0x38, 0x78, 0x4F, 0x46}},
		{"acceleration", 0x60C5, 10000, Frame{0x11, 0x03, 0xC5, 0x60, 0x00, 0x02, 0x10, 0x27, 0x00, 0x00, 0x10, 0x7A, 0x4F, 0x46}},
	}
	for _, v := range vectors {
		t.Run(v.name, func(t *testing.T) {
			f := NewWriteFrame(v.index, v.data)
			assert.Equal(t, v.expected, f)
			assert.False(t, f.IsRead())
			assert.Equal(t, v.data, f.Data())
			assert.EqualValues(t, 0, f.Subindex())
		})
	}
}

func TestChecksumCoversPrefix(t *testing.T) {
	for _, data := range []int32{0, 1, -1, 0x7FFFFFFF, -0x80000000, 123456} {
		f := NewWriteFrame(0x206B, data)
		prefix := append(Frame{}, f[:WriteLength-2]...)
		prefix[10], prefix[11] = 0, 0
		assert.Equal(t, crc.Block(prefix, 6), f.Checksum())
	}
	f := NewReadFrame(0x6041, 0)
	prefix := append(Frame{}, f[:ReadLength-2]...)
	prefix[6], prefix[7] = 0, 0
	assert.Equal(t, crc.Block(prefix, 4), f.Checksum())
}

func TestFrameSections(t *testing.T) {
	read := NewReadFrame(0x6041, 0)
	assert.Equal(t, []byte{OpcodeRead}, read.Opcode())
	assert.Equal(t, []byte(read[1:8]), read.Request())
	assert.Len(t, read.Request(), 7)
	assert.Equal(t, []byte{Ack}, read.Ack())

	write := NewWriteFrame(0x6040, 6)
	assert.Equal(t, []byte{OpcodeWrite}, write.Opcode())
	assert.Len(t, write.Request(), 11)
	assert.Equal(t, []byte(write[1:12]), write.Request())
	assert.Equal(t, []byte{Ack}, write.Ack())
	assert.Equal(t, "WRITE x6040|x0 = 6", write.String())
	assert.Equal(t, "READ x6041|x0", read.String())
}
