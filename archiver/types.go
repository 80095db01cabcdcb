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

package archiver

import (
	"time"
	"zipfinder/indexer"
)

type FailedBatchStatus string

const (
	StatusPending  FailedBatchStatus = "pending"
	StatusResolved FailedBatchStatus = "resolved"
)

// FailedBatch is a batch (or its part) the store refused
// or was unable to accept even after all the retries.
type FailedBatch struct {
	ID          int64              `json:"id,omitempty"`
	RunID       string             `json:"runId"`
	Index       string             `json:"index"`
	BatchNum    int                `json:"batchNum"`
	MinRow      int                `json:"minRow"`
	MaxRow      int                `json:"maxRow"`
	NumDocs     int                `json:"numDocs"`
	Reason      string             `json:"reason"`
	Items       []indexer.BulkItem `json:"items"`
	NumAttempts int                `json:"numAttempts"`
	Status      FailedBatchStatus  `json:"status"`
	Created     time.Time          `json:"created"`
}

// FailedBatchQueue is a fast intermediate storage of failed batches
type FailedBatchQueue interface {
	PushFailedBatch(queue string, fb FailedBatch) error
	NextNFailedBatches(queue string, n int64) ([]FailedBatch, error)
}

// FailedBatchArchive is a durable storage of failed batches
type FailedBatchArchive interface {
	InsertFailedBatch(fb FailedBatch) (int64, error)
	LoadPendingFailedBatches(index string, limit int) ([]FailedBatch, error)
	UpdateFailedBatchStatus(id int64, status FailedBatchStatus, numAttempts int) error
}
