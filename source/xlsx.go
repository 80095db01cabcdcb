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
	"fmt"
	"strings"
	"zipfinder/address"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// XLSXReader streams rows of a single workbook sheet.
type XLSXReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	sheet   string
	total   int
	nextRow int
	eof     bool
}

func (r *XLSXReader) TotalRows() int {
	return r.total
}

func (r *XLSXReader) Sheet() string {
	return r.sheet
}

func (r *XLSXReader) ReadWindow(w Window) ([]address.RawRow, bool, error) {
	if r.eof {
		return []address.RawRow{}, true, nil
	}
	ans := make([]address.RawRow, 0, w.Size())
	for r.nextRow <= w.MaxRow {
		if !r.rows.Next() {
			r.eof = true
			if err := r.rows.Error(); err != nil {
				return ans, true, fmt.Errorf("failed to read sheet %s: %w", r.sheet, err)
			}
			return ans, true, nil
		}
		rowNum := r.nextRow
		r.nextRow++
		cols, err := r.rows.Columns()
		if err != nil {
			return ans, false, fmt.Errorf("failed to read row %d: %w", rowNum, err)
		}
		if rowNum < w.MinRow {
			continue
		}
		row := address.RawRow{RowNum: rowNum, Cells: cols}
		if row.LeadingCellEmpty() {
			log.Info().Int("rowNum", rowNum).Msg("reached row with empty leading cell, end of data")
			r.eof = true
			return ans, true, nil
		}
		ans = append(ans, row)
	}
	if r.total >= 0 && w.MaxRow >= r.total {
		r.eof = true
	}
	return ans, r.eof, nil
}

func (r *XLSXReader) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
	}
	if err2 := r.file.Close(); err2 != nil && err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	return nil
}

// sheetRowCount determines number of rows from the sheet dimension
// (e.g. A1:I5000). In case the dimension is missing or obviously
// incomplete, -1 is returned.
func sheetRowCount(f *excelize.File, sheet string) int {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return -1
	}
	lastCell := dim
	if i := strings.Index(dim, ":"); i >= 0 {
		lastCell = dim[i+1:]
	}
	_, row, err := excelize.CellNameToCoordinates(lastCell)
	if err != nil || row < FirstDataRow {
		return -1
	}
	return row
}

// OpenXLSX opens a workbook for streaming. An empty sheet
// means the active sheet.
func OpenXLSX(path, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}
	ans := &XLSXReader{
		file:    f,
		rows:    rows,
		sheet:   sheet,
		total:   sheetRowCount(f, sheet),
		nextRow: 1,
	}
	log.Info().
		Str("file", path).
		Str("sheet", sheet).
		Int("totalRows", ans.total).
		Msg("opened workbook")
	return ans, nil
}
