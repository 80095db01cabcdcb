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
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sink receives batches the loader gave up on
type Sink interface {
	Put(fb FailedBatch) error
}

// RedisSink stores failed batches to a fast queue (Redis). The queue
// is later drained to a durable archive by DeadLetterKeeper.
type RedisSink struct {
	queue    FailedBatchQueue
	queueKey string
}

func (s *RedisSink) Put(fb FailedBatch) error {
	if err := s.queue.PushFailedBatch(s.queueKey, fb); err != nil {
		return fmt.Errorf("failed to put batch to dead letter queue: %w", err)
	}
	return nil
}

func NewRedisSink(queue FailedBatchQueue, queueKey string) *RedisSink {
	return &RedisSink{queue: queue, queueKey: queueKey}
}

// ---------------------

type MySQLSink struct {
	archive FailedBatchArchive
}

func (s *MySQLSink) Put(fb FailedBatch) error {
	if _, err := s.archive.InsertFailedBatch(fb); err != nil {
		return fmt.Errorf("failed to put batch to dead letter archive: %w", err)
	}
	return nil
}

func NewMySQLSink(archive FailedBatchArchive) *MySQLSink {
	return &MySQLSink{archive: archive}
}

// ---------------------

// LogSink only reports failed batches to the log.
// It is used when neither Redis nor the database are configured.
type LogSink struct{}

func (s *LogSink) Put(fb FailedBatch) error {
	ids := make([]string, 0, len(fb.Items))
	for _, item := range fb.Items {
		ids = append(ids, item.ID)
	}
	log.Error().
		Str("runId", fb.RunID).
		Str("index", fb.Index).
		Int("batchNum", fb.BatchNum).
		Int("minRow", fb.MinRow).
		Int("maxRow", fb.MaxRow).
		Int("numDocs", fb.NumDocs).
		Strs("docIds", ids).
		Str("reason", fb.Reason).
		Msg("batch not loaded")
	return nil
}
