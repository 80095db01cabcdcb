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
	"path/filepath"
	"strings"
	"zipfinder/address"
)

// Reader provides sequential, window-based access to source rows.
// Windows must be requested in increasing order. Rows preceding
// a requested window are skipped.
type Reader interface {

	// TotalRows returns the declared number of rows (including
	// the header row) or -1 if the number is not known.
	TotalRows() int

	// ReadWindow returns rows of the window. The returned bool
	// reports end of data (either the source is exhausted or
	// a row with an empty leading cell has been reached). In such
	// case the returned rows are still valid and no more windows
	// should be read.
	ReadWindow(w Window) ([]address.RawRow, bool, error)

	Close() error
}

type Options struct {
	Sheet        string
	CSVDelimiter rune
}

// Open opens a source file with a reader matching its extension.
func Open(path string, opts Options) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenXLSX(path, opts.Sheet)
	case ".csv", ".txt":
		return OpenCSV(path, opts.CSVDelimiter)
	case ".tsv":
		return OpenCSV(path, '\t')
	}
	return nil, fmt.Errorf("unsupported source file type: %s", filepath.Base(path))
}
