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
	"regexp"
	"strconv"
	"strings"
)

const (
	placeholderValue = "?"

	dfltMinCityIDLen   = 1
	dfltMinStreetIDLen = 5
	dfltMinZipLen      = 7
)

var leadingNumber = regexp.MustCompile(`^\d+`)

// Policy specifies minimal lengths of numeric identifiers.
type Policy struct {
	MinCityIDLen   int `json:"minCityIdLen"`
	MinStreetIDLen int `json:"minStreetIdLen"`
	MinZipLen      int `json:"minZipLen"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinCityIDLen:   dfltMinCityIDLen,
		MinStreetIDLen: dfltMinStreetIDLen,
		MinZipLen:      dfltMinZipLen,
	}
}

// Rejection describes why a row cannot be used. The zero value
// means the row has been accepted.
type Rejection struct {
	Field  string
	Reason string
}

func (r Rejection) IsZero() bool {
	return r.Field == "" && r.Reason == ""
}

func (r Rejection) String() string {
	if r.IsZero() {
		return "accepted"
	}
	return fmt.Sprintf("%s: %s", r.Field, r.Reason)
}

func reject(field, reason string, args ...any) Rejection {
	return Rejection{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// numericCell strips a float suffix spreadsheets tend to add
// to integer cells (e.g. 6100001.0)
func numericCell(v string) string {
	if strings.HasSuffix(v, ".0") {
		return strings.TrimSuffix(v, ".0")
	}
	return v
}

func verifyName(field, v string) Rejection {
	if v == "" {
		return reject(field, "empty value")
	}
	if v == placeholderValue {
		return reject(field, "placeholder value")
	}
	return Rejection{}
}

func verifyNumber(field, v string, minLen int) Rejection {
	if v == "" {
		return reject(field, "empty value")
	}
	if len(v) < minLen {
		return reject(field, "value `%s` shorter than %d", v, minLen)
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return reject(field, "value `%s` is not numeric", v)
		}
	}
	if _, err := strconv.Atoi(v); err != nil {
		return reject(field, "value `%s` is not an integer", v)
	}
	return Rejection{}
}

// Validate tests whether the row can be transformed into a Record.
func Validate(row RawRow, policy Policy) Rejection {
	if r := verifyName("city_name", row.Cell(ColCityName)); !r.IsZero() {
		return r
	}
	if r := verifyName("street_name", row.Cell(ColStreetName)); !r.IsZero() {
		return r
	}
	houseNum := row.Cell(ColHouseNumber)
	if houseNum == "" {
		return reject("house_number", "empty value")
	}
	if !leadingNumber.MatchString(numericCell(houseNum)) {
		return reject("house_number", "value `%s` does not start with a number", houseNum)
	}
	if r := verifyNumber("city_id", numericCell(row.Cell(ColCityID)), policy.MinCityIDLen); !r.IsZero() {
		return r
	}
	if r := verifyNumber("street_id", numericCell(row.Cell(ColStreetID)), policy.MinStreetIDLen); !r.IsZero() {
		return r
	}
	if r := verifyNumber("zip_code", numericCell(row.Cell(ColZipCode)), policy.MinZipLen); !r.IsZero() {
		return r
	}
	return Rejection{}
}
