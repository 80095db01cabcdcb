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
	"strconv"
	"time"
)

const (
	// DateTimeLayout is the layout of all dates sent to the index.
	// It must match the date format declared in the index mapping.
	DateTimeLayout = "2006-01-02 15:04:05"

	// SourceDateLayout is the layout of the `Updated` column
	SourceDateLayout = "20060102"
)

// Transformer validates raw rows and converts them into records.
type Transformer struct {
	Policy   Policy
	Location *time.Location

	// Now provides the processing time used for record timestamps
	Now func() time.Time
}

func coerceID(v string) (string, error) {
	n, err := strconv.Atoi(numericCell(v))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

// Transform converts a row into a normalized record. In case the row
// is not usable, a non-zero Rejection is returned and the record must
// be ignored.
func (t *Transformer) Transform(row RawRow) (Record, Rejection) {
	if r := Validate(row, t.Policy); !r.IsZero() {
		return Record{}, r
	}
	cityID, err := coerceID(row.Cell(ColCityID))
	if err != nil {
		return Record{}, reject("city_id", "failed to coerce: %s", err)
	}
	streetID, err := coerceID(row.Cell(ColStreetID))
	if err != nil {
		return Record{}, reject("street_id", "failed to coerce: %s", err)
	}
	zipCode, err := coerceID(row.Cell(ColZipCode))
	if err != nil {
		return Record{}, reject("zip_code", "failed to coerce: %s", err)
	}
	rawUpdated := numericCell(row.Cell(ColUpdated))
	if rawUpdated == "" {
		return Record{}, reject("updated", "empty value")
	}
	updated, err := time.ParseInLocation(SourceDateLayout, rawUpdated, t.location())
	if err != nil {
		return Record{}, reject("updated", "invalid date `%s`", rawUpdated)
	}
	cityName := row.Cell(ColCityName)
	streetName := row.Cell(ColStreetName)
	return Record{
		RowNum:      row.RowNum,
		CityID:      cityID,
		CityName:    cityName,
		StreetID:    streetID,
		StreetName:  streetName,
		HouseNumber: numericCell(row.Cell(ColHouseNumber)),
		Entrance:    row.Cell(ColEntrance),
		ZipCode:     zipCode,
		Remark:      row.Cell(ColRemark),
		Updated:     updated.Format(DateTimeLayout),
		Timestamp:   t.now().Format(DateTimeLayout),
		FullAddress: cityName + " " + streetName,
	}, Rejection{}
}

func (t *Transformer) location() *time.Location {
	if t.Location == nil {
		return time.Local
	}
	return t.Location
}

func (t *Transformer) now() time.Time {
	if t.Now == nil {
		return time.Now().In(t.location())
	}
	return t.Now().In(t.location())
}

func NewTransformer(policy Policy, loc *time.Location) *Transformer {
	return &Transformer{
		Policy:   policy,
		Location: loc,
		Now:      time.Now,
	}
}
