package feed

import (
	"sort"
	"sync"
)

const (
	DefaultThreshold = 50
	DefaultOverscan  = 3
	DefaultRowHeight = 72
)

type Viewport struct {
	Offset float64
	Height float64
}

// Row is one rendered row positioned absolutely within the list.
type Row struct {
	Index  int
	Offset float64
	Height float64
}

type Window struct {
	Rows        []Row
	Start       int // first rendered index
	End         int // one past the last rendered index
	TotalHeight float64
	Windowed    bool
}

type VirtualizerOptions struct {
	// RowHeight is used for rows that have not been measured.
	RowHeight float64
	// Overscan rows are added past each edge. Zero means the default,
	// negative disables it.
	Overscan int
	// Lists with at most Threshold rows are rendered in full.
	Threshold int
}

// Virtualizer computes which rows of a long list intersect a viewport.
// Offsets come from prefix sums over row heights, rebuilt lazily after a
// count change or measurement.
type Virtualizer struct {
	mu        sync.Mutex
	rowHeight float64
	overscan  int
	threshold int
	count     int
	measured  map[int]float64
	prefix    []float64
	dirty     bool
}

func NewVirtualizer(opts VirtualizerOptions) *Virtualizer {
	v := &Virtualizer{
		rowHeight: opts.RowHeight,
		overscan:  opts.Overscan,
		threshold: opts.Threshold,
		measured:  map[int]float64{},
		dirty:     true,
	}
	if v.rowHeight <= 0 {
		v.rowHeight = DefaultRowHeight
	}
	if v.overscan < 0 {
		v.overscan = 0
	} else if v.overscan == 0 {
		v.overscan = DefaultOverscan
	}
	if v.threshold <= 0 {
		v.threshold = DefaultThreshold
	}
	return v
}

func (v *Virtualizer) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if n == v.count {
		return
	}
	for i := range v.measured {
		if i >= n {
			delete(v.measured, i)
		}
	}
	v.count = n
	v.dirty = true
}

// Measure records the rendered height of row i.
func (v *Virtualizer) Measure(i int, height float64) {
	if height <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= v.count || v.measured[i] == height {
		return
	}
	v.measured[i] = height
	v.dirty = true
}

func (v *Virtualizer) heightLocked(i int) float64 {
	if h, ok := v.measured[i]; ok {
		return h
	}
	return v.rowHeight
}

func (v *Virtualizer) rebuildLocked() {
	if !v.dirty {
		return
	}
	if cap(v.prefix) < v.count+1 {
		v.prefix = make([]float64, v.count+1)
	}
	v.prefix = v.prefix[:v.count+1]
	v.prefix[0] = 0
	for i := 0; i < v.count; i++ {
		v.prefix[i+1] = v.prefix[i] + v.heightLocked(i)
	}
	v.dirty = false
}

func (v *Virtualizer) TotalHeight() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rebuildLocked()
	return v.prefix[v.count]
}

// OffsetOf returns the top of row i, for scroll-to-row.
func (v *Virtualizer) OffsetOf(i int) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rebuildLocked()
	if i <= 0 {
		return 0
	}
	if i > v.count {
		i = v.count
	}
	return v.prefix[i]
}

func (v *Virtualizer) Window(vp Viewport) Window {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rebuildLocked()

	w := Window{TotalHeight: v.prefix[v.count]}
	if v.count == 0 {
		return w
	}
	start, end := 0, v.count
	if v.count > v.threshold {
		w.Windowed = true
		top := vp.Offset
		if top < 0 {
			top = 0
		}
		bottom := top + vp.Height
		// first row whose bottom edge is below the viewport top
		start = sort.Search(v.count, func(i int) bool { return v.prefix[i+1] > top })
		// first row whose top edge is at or past the viewport bottom
		end = sort.Search(v.count, func(i int) bool { return v.prefix[i] >= bottom })
		if end < start {
			end = start
		}
		start -= v.overscan
		if start < 0 {
			start = 0
		}
		end += v.overscan
		if end > v.count {
			end = v.count
		}
	}
	w.Start, w.End = start, end
	w.Rows = make([]Row, 0, end-start)
	for i := start; i < end; i++ {
		w.Rows = append(w.Rows, Row{Index: i, Offset: v.prefix[i], Height: v.prefix[i+1] - v.prefix[i]})
	}
	return w
}
