package media

import (
	"io"
	"math"
	"sync"
)

// interimCeiling keeps in-flight fractions strictly below 1 so that 1.0 is
// only ever reported once the object store has acknowledged the put.
var interimCeiling = math.Nextafter(1, 0)

type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu      sync.Mutex
	read    int64
	last    float64
	stopped bool
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

func (p *progressReader) advance(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read += n
	if p.stopped || p.fn == nil || p.total <= 0 {
		return
	}
	fraction := math.Min(float64(p.read)/float64(p.total), interimCeiling)
	if fraction <= p.last {
		return
	}
	p.last = fraction
	p.fn(fraction)
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.fn != nil {
		p.fn(1.0)
	}
}

func (p *progressReader) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *progressReader) transferred() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}
