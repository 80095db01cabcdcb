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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func collect(first, total, size int, limit int) []Window {
	ans := make([]Window, 0, 10)
	for w := range Windows(first, total, size) {
		ans = append(ans, w)
		if len(ans) >= limit {
			break
		}
	}
	return ans
}

func TestWindowsCoverRangeExactlyOnce(t *testing.T) {
	for _, tc := range []struct{ total, size int }{
		{2, 1000}, {1001, 1000}, {1002, 1000}, {2500, 1000}, {17, 3}, {10, 1},
	} {
		windows := collect(FirstDataRow, tc.total, tc.size, 10000)
		expected := FirstDataRow
		for i, w := range windows {
			assert.Equal(t, i+1, w.Num)
			assert.Equal(t, expected, w.MinRow)
			assert.LessOrEqual(t, w.Size(), tc.size)
			assert.GreaterOrEqual(t, w.Size(), 1)
			expected = w.MaxRow + 1
		}
		assert.Equal(t, tc.total+1, expected)
	}
}

func TestWindowsExcludeHeader(t *testing.T) {
	windows := collect(1, 5, 10, 100)
	assert.Len(t, windows, 1)
	assert.Equal(t, 2, windows[0].MinRow)
	assert.Equal(t, 5, windows[0].MaxRow)
}

func TestWindowsEmptyInput(t *testing.T) {
	assert.Len(t, collect(FirstDataRow, 1, 10, 100), 0)
	assert.Len(t, collect(FirstDataRow, 0, 10, 100), 0)
	assert.Len(t, collect(FirstDataRow, 100, 0, 100), 0)
}

func TestWindowsUnknownTotal(t *testing.T) {
	windows := collect(FirstDataRow, -1, 5, 3)
	assert.Equal(t, []Window{
		{Num: 1, MinRow: 2, MaxRow: 6},
		{Num: 2, MinRow: 7, MaxRow: 11},
		{Num: 3, MinRow: 12, MaxRow: 16},
	}, windows)
}

func TestWindowsResume(t *testing.T) {
	windows := collect(1002, 2500, 1000, 100)
	assert.Equal(t, []Window{
		{Num: 1, MinRow: 1002, MaxRow: 2001},
		{Num: 2, MinRow: 2002, MaxRow: 2500},
	}, windows)
}

func writeCSV(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "zips.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCSVReaderStopsAtEmptyLeadingCell(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"LocationID,City Name,StreetID,Street Name,House Number,Entrance,ZIP 7,Remark,Updated",
		"1001,Tel Aviv,20001,Herzl,12,A,6100001,,20230101",
		"1001,Tel Aviv,20001,Herzl,14,,6100002,,20230101",
		"1002,Haifa,20002,Hagefen,3,,3100001,,20230101",
		",,,,,,,,",
		"1003,Eilat,20003,Hatmarim,1,,8800001,,20230101",
	}, "\n"))
	rdr, err := Open(path, Options{})
	require.NoError(t, err)
	defer rdr.Close()
	assert.Equal(t, -1, rdr.TotalRows())

	rows, eof, err := rdr.ReadWindow(Window{Num: 1, MinRow: 2, MaxRow: 3})
	assert.NoError(t, err)
	assert.False(t, eof)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].RowNum)
	assert.Equal(t, "Herzl", rows[0].Cells[3])

	rows, eof, err = rdr.ReadWindow(Window{Num: 2, MinRow: 4, MaxRow: 5})
	assert.NoError(t, err)
	assert.True(t, eof)
	assert.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].RowNum)

	rows, eof, err = rdr.ReadWindow(Window{Num: 3, MinRow: 6, MaxRow: 7})
	assert.NoError(t, err)
	assert.True(t, eof)
	assert.Len(t, rows, 0)
}

func TestCSVReaderSkipsToWindow(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"header",
		"1001,Tel Aviv,20001,Herzl,12,A,6100001,,20230101",
		"1001,Tel Aviv,20001,Herzl,14,,6100002,,20230101",
		"1002,Haifa,20002,Hagefen,3,,3100001,,20230101",
	}, "\n"))
	rdr, err := OpenCSV(path, ',')
	require.NoError(t, err)
	defer rdr.Close()
	rows, eof, err := rdr.ReadWindow(Window{Num: 1, MinRow: 4, MaxRow: 10})
	assert.NoError(t, err)
	assert.True(t, eof)
	assert.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].RowNum)
	assert.Equal(t, "Haifa", rows[0].Cells[1])
}

func TestCSVReaderStopsAtBlankLine(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"LocationID,City Name,StreetID,Street Name,House Number,Entrance,ZIP 7,Remark,Updated",
		"1001,Tel Aviv,20001,Herzl,12,A,6100001,,20230101",
		"",
		"1002,Haifa,20002,Hagefen,3,,3100001,,20230101",
	}, "\n"))
	rdr, err := OpenCSV(path, ',')
	require.NoError(t, err)
	defer rdr.Close()
	rows, eof, err := rdr.ReadWindow(Window{Num: 1, MinRow: 2, MaxRow: 100})
	assert.NoError(t, err)
	assert.True(t, eof)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].RowNum)
	assert.Equal(t, "Tel Aviv", rows[0].Cells[1])

	rows, eof, err = rdr.ReadWindow(Window{Num: 2, MinRow: 101, MaxRow: 200})
	assert.NoError(t, err)
	assert.True(t, eof)
	assert.Empty(t, rows)
}

func TestCSVReaderStopsAtBlankLineBetweenWindows(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"header",
		"1001,Tel Aviv,20001,Herzl,12,A,6100001,,20230101",
		"1001,Tel Aviv,20001,Herzl,14,,6100002,,20230101",
		"",
		"1002,Haifa,20002,Hagefen,3,,3100001,,20230101",
	}, "\n"))
	rdr, err := OpenCSV(path, ',')
	require.NoError(t, err)
	defer rdr.Close()
	rows, eof, err := rdr.ReadWindow(Window{Num: 1, MinRow: 2, MaxRow: 3})
	assert.NoError(t, err)
	assert.False(t, eof)
	assert.Len(t, rows, 2)

	rows, eof, err = rdr.ReadWindow(Window{Num: 2, MinRow: 4, MaxRow: 5})
	assert.NoError(t, err)
	assert.True(t, eof)
	assert.Empty(t, rows)
}

func TestCSVReaderRowNumFollowsPhysicalLines(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"header",
		"1001,Tel Aviv,20001,\"Herzl",
		"north\",12,A,6100001,,20230101",
		"1002,Haifa,20002,Hagefen,3,,3100001,,20230101",
	}, "\n"))
	rdr, err := OpenCSV(path, ',')
	require.NoError(t, err)
	defer rdr.Close()
	rows, eof, err := rdr.ReadWindow(Window{Num: 1, MinRow: 2, MaxRow: 3})
	assert.NoError(t, err)
	assert.False(t, eof)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].RowNum)
	assert.Equal(t, "Herzl\nnorth", rows[0].Cells[3])

	rows, eof, err = rdr.ReadWindow(Window{Num: 2, MinRow: 4, MaxRow: 5})
	assert.NoError(t, err)
	assert.True(t, eof)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].RowNum)
	assert.Equal(t, "Haifa", rows[0].Cells[1])
}

func TestUnsupportedSource(t *testing.T) {
	_, err := Open("/tmp/foo.parquet", Options{})
	assert.Error(t, err)
}

func writeXLSX(t *testing.T, rows [][]any) string {
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	path := filepath.Join(t.TempDir(), "zips.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestXLSXReader(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{"LocationID", "City Name", "StreetID", "Street Name", "House Number", "Entrance", "ZIP 7", "Remark", "Updated"},
		{"1001", "Tel Aviv", "20001", "Herzl", "12", "A", "6100001", "", "20230101"},
		{"1001", "Tel Aviv", "20001", "Herzl", "14", "", "6100002", "", "20230101"},
		{"1002", "Haifa", "20002", "Hagefen", "3", "", "3100001", "", "20230101"},
		{"", "Orphan"},
		{"1003", "Eilat", "20003", "Hatmarim", "1", "", "8800001", "", "20230101"},
	})
	rdr, err := Open(path, Options{})
	require.NoError(t, err)
	defer rdr.Close()

	var all []int
	var numWindows int
	for w := range Windows(FirstDataRow, rdr.TotalRows(), 2) {
		numWindows++
		rows, eof, err := rdr.ReadWindow(w)
		assert.NoError(t, err)
		for _, row := range rows {
			all = append(all, row.RowNum)
		}
		if eof {
			break
		}
		if numWindows > 10 {
			break
		}
	}
	assert.Equal(t, []int{2, 3, 4}, all)
	assert.Equal(t, 2, numWindows)
}
