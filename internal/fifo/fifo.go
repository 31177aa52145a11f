package fifo

// Circular byte fifo used as receive buffer by the channel back-ends.
// It is not safe for concurrent use, callers hold their own lock.
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
	dropped  int
}

// NewFifo creates a fifo able to hold size-1 bytes
func NewFifo(size uint16) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
	f.dropped = 0
}

// Space returns the number of bytes that can still be written
func (f *Fifo) Space() int {
	sizeLeft := f.readPos - f.writePos - 1
	if sizeLeft < 0 {
		sizeLeft += len(f.buffer)
	}
	return sizeLeft
}

// Occupied returns the number of bytes waiting to be read
func (f *Fifo) Occupied() int {
	sizeOccupied := f.writePos - f.readPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// Dropped returns how many bytes were refused because the fifo was full
// since the last Reset.
func (f *Fifo) Dropped() int {
	return f.dropped
}

// Write data to fifo and return number of bytes written.
// Bytes that do not fit are dropped and counted.
func (f *Fifo) Write(buffer []byte) int {
	writeCounter := 0
	for _, element := range buffer {
		writePosNext := f.writePos + 1
		if writePosNext == len(f.buffer) {
			writePosNext = 0
		}
		if writePosNext == f.readPos {
			break
		}
		f.buffer[f.writePos] = element
		f.writePos = writePosNext
		writeCounter++
	}
	f.dropped += len(buffer) - writeCounter
	return writeCounter
}

// Read data from fifo and return number of bytes read
func (f *Fifo) Read(buffer []byte) int {
	readCounter := 0
	for index := range buffer {
		if f.readPos == f.writePos {
			break
		}
		buffer[index] = f.buffer[f.readPos]
		readCounter++
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
	return readCounter
}
