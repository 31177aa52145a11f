package crc

// Generator polynomial x^16 + x^12 + x^5 + 1
const Polynomial = 0x1021

// CRC16 is the shift register of the checksum used on the EPOS RS-232 line.
// Data is fed in 16 bit words, most significant bit first, without
// reflection and without a final xor.
type CRC16 uint16

// Word shifts one 16 bit word through the register.
func (crc *CRC16) Word(data uint16) {
	for shifter := uint16(0x8000); shifter > 0; shifter >>= 1 {
		carry := *crc & 0x8000
		*crc <<= 1
		if data&shifter != 0 {
			*crc |= 1
		}
		if carry != 0 {
			*crc ^= Polynomial
		}
	}
}

// Block computes the checksum of the first nbWords words of buf.
// Word i is made of buf[2i] as high byte and buf[2i+1] as low byte,
// so buf must hold at least 2*nbWords bytes.
// Some EPOS2 host implementations pack the words after the first one low
// byte first. A controller rejecting every frame with a checksum error
// points at that packing.
func Block(buf []byte, nbWords int) uint16 {
	crc := CRC16(0)
	for i := 0; i < nbWords; i++ {
		crc.Word(uint16(buf[2*i])<<8 | uint16(buf[2*i+1]))
	}
	return uint16(crc)
}
