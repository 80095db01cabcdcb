package source

import (
	"fmt"
	"iter"
)

const (
	// FirstDataRow is the first row after the header row
	FirstDataRow = 2
)

// Window is a contiguous, inclusive range of 1-based source rows.
type Window struct {
	Num    int
	MinRow int
	MaxRow int
}

func (w Window) Size() int {
	return w.MaxRow - w.MinRow + 1
}

func (w Window) String() string {
	return fmt.Sprintf("Window(%d: %d-%d)", w.Num, w.MinRow, w.MaxRow)
}

// Windows produces windows of the specified size covering rows
// [firstRow, totalRows] in order. A negative totalRows means the row
// count is not known in advance and the sequence is unbounded
// (the consumer is expected to stop once a reader reports end of data).
func Windows(firstRow, totalRows, size int) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if size <= 0 {
			return
		}
		if firstRow < FirstDataRow {
			firstRow = FirstDataRow
		}
		num := 1
		for minRow := firstRow; totalRows < 0 || minRow <= totalRows; minRow += size {
			maxRow := minRow + size - 1
			if totalRows >= 0 && maxRow > totalRows {
				maxRow = totalRows
			}
			if !yield(Window{Num: num, MinRow: minRow, MaxRow: maxRow}) {
				return
			}
			num++
		}
	}
}
