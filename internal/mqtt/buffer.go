package mqtt

// bufferedMsg is an outgoing publish held while the broker is unreachable.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a bounded FIFO that keeps the newest items once full.
// Callers synchronize.
type ringBuffer[T any] struct {
	items   []T
	start   int // index of the oldest item
	count   int
	dropped bool // an item was overwritten since the last drain
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	return &ringBuffer[T]{items: make([]T, capacity)}
}

// push appends v. When full the oldest item is overwritten; push reports
// true only for the first overwrite since the last drain so callers can log
// once per outage.
func (r *ringBuffer[T]) push(v T) bool {
	size := len(r.items)
	if r.count < size {
		r.items[(r.start+r.count)%size] = v
		r.count++
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % size
	first := !r.dropped
	r.dropped = true
	return first
}

// drainAll removes and returns every item, oldest first. Nil when empty.
func (r *ringBuffer[T]) drainAll() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.items[(r.start+i)%len(r.items)])
	}
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start, r.count, r.dropped = 0, 0, false
	return out
}

func (r *ringBuffer[T]) len() int {
	return r.count
}

func (r *ringBuffer[T]) capacity() int {
	return len(r.items)
}
