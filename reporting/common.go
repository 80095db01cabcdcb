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

package reporting

import (
	"context"
	"time"
)

// BatchStats describes processing of a single window of source rows
type BatchStats struct {
	RunID         string `json:"runId"`
	BatchNum      int    `json:"batchNum"`
	MinRow        int    `json:"minRow"`
	MaxRow        int    `json:"maxRow"`
	NumRows       int    `json:"numRows"`
	NumRejected   int    `json:"numRejected"`
	NumDuplicates int    `json:"numDuplicates"`
	NumIndexed    int    `json:"numIndexed"`
	NumFailed     int    `json:"numFailed"`
	NumRetries    int    `json:"numRetries"`
}

// ------------

type RunStats struct {
	RunID         string        `json:"runId"`
	Index         string        `json:"index"`
	Source        string        `json:"source"`
	Started       time.Time     `json:"started"`
	Finished      time.Time     `json:"finished"`
	LastRow       int           `json:"lastRow"`
	NumBatches    int           `json:"numBatches"`
	NumRows       int           `json:"numRows"`
	NumRejected   int           `json:"numRejected"`
	NumDuplicates int           `json:"numDuplicates"`
	NumIndexed    int           `json:"numIndexed"`
	NumFailed     int           `json:"numFailed"`
	NumRetries    int           `json:"numRetries"`
	ProcTime      time.Duration `json:"procTime"`
}

func (rs *RunStats) UpdateBy(other BatchStats) {
	rs.NumBatches++
	rs.NumRows += other.NumRows
	rs.NumRejected += other.NumRejected
	rs.NumDuplicates += other.NumDuplicates
	rs.NumIndexed += other.NumIndexed
	rs.NumFailed += other.NumFailed
	rs.NumRetries += other.NumRetries
	if other.MaxRow > rs.LastRow {
		rs.LastRow = other.MaxRow
	}
}

func (rs *RunStats) ShowsActivity() bool {
	return rs.NumRows+rs.NumFailed+rs.NumIndexed > 0
}

// ------------

type IReporting interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	WriteBatchStatus(item BatchStats)
	WriteRunStatus(item RunStats)
}
