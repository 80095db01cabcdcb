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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mkRow(cells ...string) RawRow {
	return RawRow{RowNum: 2, Cells: cells}
}

func validRow() RawRow {
	return mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "6100001", "", "20230101")
}

func fixedTransformer(ts time.Time) *Transformer {
	return &Transformer{
		Policy:   DefaultPolicy(),
		Location: time.UTC,
		Now:      func() time.Time { return ts },
	}
}

func TestTransformScenario(t *testing.T) {
	tr := fixedTransformer(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	rec, rej := tr.Transform(validRow())
	assert.True(t, rej.IsZero())
	assert.Equal(t, Record{
		RowNum:      2,
		CityID:      "1001",
		CityName:    "Tel Aviv",
		StreetID:    "20001",
		StreetName:  "Herzl",
		HouseNumber: "12",
		Entrance:    "A",
		ZipCode:     "6100001",
		Remark:      "",
		Updated:     "2023-01-01 00:00:00",
		Timestamp:   "2024-05-06 07:08:09",
		FullAddress: "Tel Aviv Herzl",
	}, rec)
}

func TestTransformIsIdempotentExceptTimestamp(t *testing.T) {
	tr1 := fixedTransformer(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tr2 := fixedTransformer(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	rec1, _ := tr1.Transform(validRow())
	rec2, _ := tr2.Transform(validRow())
	assert.NotEqual(t, rec1.Timestamp, rec2.Timestamp)
	rec2.Timestamp = rec1.Timestamp
	assert.Equal(t, rec1, rec2)
}

func TestTransformCoercesIDs(t *testing.T) {
	tr := fixedTransformer(time.Now())
	rec, rej := tr.Transform(mkRow("0001001", "Haifa", "0020001", "Hagefen", "12A", "", "3100001.0", "x", "20240229"))
	assert.True(t, rej.IsZero())
	assert.Equal(t, "1001", rec.CityID)
	assert.Equal(t, "20001", rec.StreetID)
	assert.Equal(t, "3100001", rec.ZipCode)
	assert.Equal(t, "12A", rec.HouseNumber)
	assert.Equal(t, "2024-02-29 00:00:00", rec.Updated)
	assert.Equal(t, "Haifa Hagefen", rec.FullAddress)
}

func TestValidateRejectsNames(t *testing.T) {
	for _, row := range []RawRow{
		mkRow("1001", "", "20001", "Herzl", "12", "A", "6100001", "", "20230101"),
		mkRow("1001", "?", "20001", "Herzl", "12", "A", "6100001", "", "20230101"),
		mkRow("1001", "Tel Aviv", "20001", "", "12", "A", "6100001", "", "20230101"),
		mkRow("1001", "Tel Aviv", "20001", " ? ", "12", "A", "6100001", "", "20230101"),
	} {
		rej := Validate(row, DefaultPolicy())
		assert.False(t, rej.IsZero())
	}
}

func TestValidateRejectsZip(t *testing.T) {
	rej := Validate(mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "610", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "zip_code", rej.Field)
	rej = Validate(mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "61000X1", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "zip_code", rej.Field)
	rej = Validate(mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "zip_code", rej.Field)
}

func TestValidateRejectsNumbers(t *testing.T) {
	rej := Validate(mkRow("1001", "Tel Aviv", "201", "Herzl", "12", "A", "6100001", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "street_id", rej.Field)
	rej = Validate(mkRow("x", "Tel Aviv", "20001", "Herzl", "12", "A", "6100001", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "city_id", rej.Field)
	rej = Validate(mkRow("1001", "Tel Aviv", "20001", "Herzl", "", "A", "6100001", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "house_number", rej.Field)
	rej = Validate(mkRow("1001", "Tel Aviv", "20001", "Herzl", "A12", "A", "6100001", "", "20230101"), DefaultPolicy())
	assert.Equal(t, "house_number", rej.Field)
}

func TestTransformRejectsBadDate(t *testing.T) {
	tr := fixedTransformer(time.Now())
	_, rej := tr.Transform(mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "6100001", "", "2023-01-01"))
	assert.Equal(t, "updated", rej.Field)
	_, rej = tr.Transform(mkRow("1001", "Tel Aviv", "20001", "Herzl", "12", "A", "6100001", ""))
	assert.Equal(t, "updated", rej.Field)
}

func TestMissingTrailingCells(t *testing.T) {
	row := mkRow("1001", "Tel Aviv")
	assert.Equal(t, "", row.Cell(ColUpdated))
	assert.False(t, row.LeadingCellEmpty())
	assert.True(t, mkRow("", "Tel Aviv").LeadingCellEmpty())
	assert.True(t, RawRow{}.LeadingCellEmpty())
}

func TestDocID(t *testing.T) {
	rec := Record{ZipCode: "6100001", HouseNumber: "12", Entrance: "A"}
	assert.Equal(t, "6100001-12-A", rec.DocID(IDStrategyNatural))
	assert.Equal(t, "6100001", rec.DocID(IDStrategyZip))
	assert.Equal(t, "", rec.DocID(IDStrategyAuto))
	rec.Entrance = ""
	assert.Equal(t, "6100001-12", rec.DocID(IDStrategyNatural))
	assert.Error(t, IDStrategy("foo").Validate())
	assert.NoError(t, IDStrategyAuto.Validate())
}
