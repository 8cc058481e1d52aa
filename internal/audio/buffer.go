package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrBufferFinished is returned when writing to a LiveBuffer after Finish
var ErrBufferFinished = errors.New("live buffer is finished")

// LiveBuffer is a thread-safe append-only buffer for audio that is still
// being recorded. Readers consume bytes as they arrive; a read that catches
// up with the writer returns io.EOF without meaning the recording is over.
// Done is closed once the producer calls Finish.
type LiveBuffer struct {
	buffer   []byte
	read     int
	finished bool
	done     chan struct{}
	mu       sync.RWMutex
}

// NewLiveBuffer creates an empty live buffer with room for capacity bytes
func NewLiveBuffer(capacity int) *LiveBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &LiveBuffer{
		buffer: make([]byte, 0, capacity),
		done:   make(chan struct{}),
	}
}

// Write appends data to the buffer
func (lb *LiveBuffer) Write(data []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.finished {
		return 0, ErrBufferFinished
	}

	lb.buffer = append(lb.buffer, data...)
	return len(data), nil
}

// Read copies unread bytes into data.
// Returns 0, io.EOF when there is nothing to read right now.
func (lb *LiveBuffer) Read(data []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.read >= len(lb.buffer) {
		return 0, io.EOF
	}

	n := copy(data, lb.buffer[lb.read:])
	lb.read += n
	return n, nil
}

// Len returns the total number of bytes written so far
func (lb *LiveBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.buffer)
}

// Available returns the number of bytes written but not read yet
func (lb *LiveBuffer) Available() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.buffer) - lb.read
}

// Finish marks the recording complete; later writes fail.
// Calling Finish more than once is a no-op.
func (lb *LiveBuffer) Finish() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.finished {
		return
	}
	lb.finished = true
	close(lb.done)
}

// Done returns a channel closed when the recording is complete
func (lb *LiveBuffer) Done() <-chan struct{} {
	return lb.done
}

// IsFinished reports whether Finish has been called
func (lb *LiveBuffer) IsFinished() bool {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.finished
}
