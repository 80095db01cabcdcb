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

package address

import (
	"fmt"
	"strings"
)

// column positions of the fixed source layout
const (
	ColCityID = iota
	ColCityName
	ColStreetID
	ColStreetName
	ColHouseNumber
	ColEntrance
	ColZipCode
	ColRemark
	ColUpdated

	NumColumns
)

// ColumnNames lists human readable names of the source columns
// (as they typically appear in the header row).
var ColumnNames = [NumColumns]string{
	"LocationID",
	"City Name",
	"StreetID",
	"Street Name",
	"House Number",
	"Entrance",
	"ZIP 7",
	"Remark",
	"Updated",
}

// RawRow is a positional row as read from a source file.
// RowNum is a 1-based row number within the source (the header
// row has number 1).
type RawRow struct {
	RowNum int
	Cells  []string
}

// Cell returns a trimmed value of the i-th cell. Missing trailing
// cells are reported as empty strings.
func (row RawRow) Cell(i int) string {
	if i < 0 || i >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[i])
}

// LeadingCellEmpty tells whether the row acts as an end-of-data sentinel.
func (row RawRow) LeadingCellEmpty() bool {
	return row.Cell(0) == ""
}

// ----------------------------

// Record is a normalized address row ready to be indexed.
type Record struct {
	RowNum      int    `json:"-"`
	CityID      string `json:"city_id"`
	CityName    string `json:"city_name"`
	StreetID    string `json:"street_id"`
	StreetName  string `json:"street_name"`
	HouseNumber string `json:"house_number"`
	Entrance    string `json:"entrance"`
	ZipCode     string `json:"zip_code"`
	Remark      string `json:"remark"`
	Updated     string `json:"updated"`
	Timestamp   string `json:"timestamp"`
	FullAddress string `json:"full_address"`
}

// DocID returns an identifier the record should be stored under.
// An empty string means "let the store assign one".
func (rec Record) DocID(strategy IDStrategy) string {
	switch strategy {
	case IDStrategyZip:
		return rec.ZipCode
	case IDStrategyAuto:
		return ""
	default:
		if rec.Entrance == "" {
			return fmt.Sprintf("%s-%s", rec.ZipCode, rec.HouseNumber)
		}
		return fmt.Sprintf("%s-%s-%s", rec.ZipCode, rec.HouseNumber, rec.Entrance)
	}
}

// ----------------------------

type IDStrategy string

const (

	// IDStrategyNatural keys documents by zip + house number + entrance
	// so re-ingesting the same source overwrites existing documents.
	IDStrategyNatural IDStrategy = "natural"

	// IDStrategyZip keys documents by the zip code only. Addresses
	// sharing a zip code overwrite each other.
	IDStrategyZip IDStrategy = "zip"

	// IDStrategyAuto leaves identifiers to the store so repeated
	// loads accumulate documents.
	IDStrategyAuto IDStrategy = "auto"
)

func (s IDStrategy) Validate() error {
	switch s {
	case IDStrategyNatural, IDStrategyZip, IDStrategyAuto:
		return nil
	}
	return fmt.Errorf("unknown document id strategy `%s`", s)
}
