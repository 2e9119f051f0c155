package logger

// RingBuffer keeps the most recent lines written to a log file.
type RingBuffer struct {
	lines     []string
	next      int
	size      int
	sinceTrim int
}

// NewRingBuffer creates a new ring buffer holding at most capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}

	return &RingBuffer{lines: make([]string, capacity)}
}

// Capacity returns the maximum number of retained lines.
func (rb *RingBuffer) Capacity() int {
	return len(rb.lines)
}

// Len returns the number of retained lines.
func (rb *RingBuffer) Len() int {
	return rb.size
}

// Push appends a line, overwriting the oldest one when full.
func (rb *RingBuffer) Push(line string) {
	rb.lines[rb.next] = line
	rb.next = (rb.next + 1) % len(rb.lines)

	if rb.size < len(rb.lines) {
		rb.size++
	}

	rb.sinceTrim++
}

// Lines returns the retained lines, oldest first.
func (rb *RingBuffer) Lines() []string {
	out := make([]string, 0, rb.size)
	start := (rb.next - rb.size + len(rb.lines)) % len(rb.lines)

	for i := range rb.size {
		out = append(out, rb.lines[(start+i)%len(rb.lines)])
	}

	return out
}
