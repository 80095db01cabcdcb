// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"zipfinder/address"
)

// CSVReader streams rows of a delimited text file. The first
// line is expected to be a header. Row numbers are physical line
// numbers so they stay comparable with what a user sees in an editor
// even when a quoted cell spans several lines. A blank line ends
// the data the same way an empty leading cell does.
type CSVReader struct {
	file     *os.File
	reader   *csv.Reader
	lastLine int
	pending  *address.RawRow
	eof      bool
}

func (r *CSVReader) TotalRows() int {
	return -1
}

// next reads one record. The returned bool is true when the record
// is preceded by a blank line (i.e. the data is over).
func (r *CSVReader) next() (address.RawRow, bool, error) {
	cells, err := r.reader.Read()
	if err != nil {
		return address.RawRow{}, false, err
	}
	line, _ := r.reader.FieldPos(0)
	gap := r.lastLine > 0 && line > r.lastLine+1
	lastField := len(cells) - 1
	endLine, _ := r.reader.FieldPos(lastField)
	r.lastLine = endLine + strings.Count(cells[lastField], "\n")
	return address.RawRow{RowNum: line, Cells: cells}, gap, nil
}

func (r *CSVReader) ReadWindow(w Window) ([]address.RawRow, bool, error) {
	if r.eof {
		return []address.RawRow{}, true, nil
	}
	ans := make([]address.RawRow, 0, w.Size())
	for {
		var row address.RawRow
		if r.pending != nil {
			row = *r.pending
			r.pending = nil

		} else {
			if r.lastLine >= w.MaxRow {
				return ans, false, nil
			}
			var blankBefore bool
			var err error
			row, blankBefore, err = r.next()
			if errors.Is(err, io.EOF) {
				r.eof = true
				return ans, true, nil

			} else if err != nil {
				return ans, false, fmt.Errorf("failed to read row %d: %w", r.lastLine+1, err)
			}
			if blankBefore {
				r.eof = true
				return ans, true, nil
			}
		}
		if row.RowNum > w.MaxRow {
			r.pending = &row
			return ans, false, nil
		}
		if row.RowNum < w.MinRow {
			continue
		}
		if row.LeadingCellEmpty() {
			r.eof = true
			return ans, true, nil
		}
		ans = append(ans, row)
	}
}

func (r *CSVReader) Close() error {
	return r.file.Close()
}

func newCSVReader(f *os.File, delimiter rune) *CSVReader {
	rdr := csv.NewReader(bufio.NewReader(f))
	if delimiter != 0 {
		rdr.Comma = delimiter
	}
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	rdr.ReuseRecord = false
	return &CSVReader{
		file:   f,
		reader: rdr,
	}
}

func OpenCSV(path string, delimiter rune) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file %s: %w", path, err)
	}
	return newCSVReader(f, delimiter), nil
}
