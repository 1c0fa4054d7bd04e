package engine

// scoreRing is a fixed-capacity ring of recent anomaly scores with
// oldest-evicted-first semantics and O(1) push.
type scoreRing struct {
	buf  []float64
	head int
	n    int
}

func newScoreRing(capacity int) *scoreRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &scoreRing{buf: make([]float64, capacity)}
}

func (r *scoreRing) Push(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *scoreRing) Len() int {
	return r.n
}

func (r *scoreRing) CountAbove(threshold float64) int {
	count := 0
	for i := 0; i < r.n; i++ {
		if r.buf[(r.head+i)%len(r.buf)] > threshold {
			count++
		}
	}
	return count
}

func (r *scoreRing) Mean() float64 {
	if r.n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		sum += r.buf[(r.head+i)%len(r.buf)]
	}
	return sum / float64(r.n)
}

func (r *scoreRing) Values() []float64 {
	out := make([]float64, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
