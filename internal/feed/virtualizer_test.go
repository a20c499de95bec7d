package feed

import "testing"

func TestSmallListRendersEverything(t *testing.T) {
	v := NewVirtualizer(VirtualizerOptions{RowHeight: 10})
	v.SetCount(50)
	w := v.Window(Viewport{Offset: 100, Height: 30})
	if w.Windowed || len(w.Rows) != 50 {
		t.Fatalf("window: windowed=%v rows=%d", w.Windowed, len(w.Rows))
	}
}

func TestWindowCoversViewport(t *testing.T) {
	const (
		rows   = 1000
		height = 20.0
		over   = 3
	)
	v := NewVirtualizer(VirtualizerOptions{RowHeight: height, Overscan: over})
	v.SetCount(rows)
	vpHeight := 10 * height

	for offset := 0.0; offset <= rows*height; offset += 37 {
		w := v.Window(Viewport{Offset: offset, Height: vpHeight})
		if !w.Windowed {
			t.Fatalf("offset %v: want windowed", offset)
		}
		if w.TotalHeight != rows*height {
			t.Fatalf("total height: want=%v got=%v", rows*height, w.TotalHeight)
		}
		firstVisible := int(offset / height)
		lastVisible := int((offset + vpHeight - 1e-9) / height)
		if lastVisible >= rows {
			lastVisible = rows - 1
		}
		if firstVisible >= rows {
			firstVisible = rows - 1
		}
		if w.Start > firstVisible || w.End <= lastVisible {
			t.Fatalf("offset %v: window [%d,%d) misses visible [%d,%d]", offset, w.Start, w.End, firstVisible, lastVisible)
		}
		// 10 visible, one partial, overscan on both sides
		if len(w.Rows) > 11+2*over {
			t.Fatalf("offset %v: too many rows %d", offset, len(w.Rows))
		}
		for i, r := range w.Rows {
			if r.Index != w.Start+i || r.Offset != float64(r.Index)*height {
				t.Fatalf("offset %v: bad row %+v", offset, r)
			}
		}
	}
}

func TestMeasuredHeightsShiftOffsets(t *testing.T) {
	v := NewVirtualizer(VirtualizerOptions{RowHeight: 10, Overscan: -1})
	v.SetCount(100)
	v.Measure(0, 110)
	if got := v.OffsetOf(1); got != 110 {
		t.Fatalf("offset of 1: want=110 got=%v", got)
	}
	w := v.Window(Viewport{Offset: 105, Height: 20})
	if w.Start != 0 || w.End != 3 {
		t.Fatalf("window: want [0,3) got [%d,%d)", w.Start, w.End)
	}
	if got := v.TotalHeight(); got != 110+99*10 {
		t.Fatalf("total: got=%v", got)
	}
	v.SetCount(0)
	if w := v.Window(Viewport{Height: 100}); len(w.Rows) != 0 {
		t.Fatalf("empty list: got=%v", w.Rows)
	}
}
