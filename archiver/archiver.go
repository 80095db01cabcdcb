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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DeadLetterKeeper periodically moves failed batches from the fast
// queue to the durable archive where they wait for a replay.
type DeadLetterKeeper struct {
	queue              FailedBatchQueue
	archive            FailedBatchArchive
	queueKey           string
	errorQueueKey      string
	checkInterval      time.Duration
	checkIntervalChunk int
	tz                 *time.Location
	stats              Stats
	statsLock          sync.Mutex
}

func (job *DeadLetterKeeper) Start(ctx context.Context) {
	ticker := time.NewTicker(job.checkInterval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				log.Info().Msg("about to close DeadLetterKeeper")
				return
			case <-ticker.C:
				if _, err := job.performCheck(); err != nil {
					log.Error().Err(err).Msg("failed to perform dead letter check")
				}
			}
		}
	}()
}

func (job *DeadLetterKeeper) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping DeadLetterKeeper")
	if err := job.Flush(); err != nil {
		return fmt.Errorf("failed to stop DeadLetterKeeper properly: %w", err)
	}
	return nil
}

func (job *DeadLetterKeeper) GetStats() Stats {
	job.statsLock.Lock()
	defer job.statsLock.Unlock()
	return job.stats
}

// Flush moves all the currently queued batches to the archive
func (job *DeadLetterKeeper) Flush() error {
	for {
		n, err := job.performCheck()
		if err != nil {
			return err
		}
		if n < job.checkIntervalChunk {
			return nil
		}
	}
}

func (job *DeadLetterKeeper) performCheck() (int, error) {
	items, err := job.queue.NextNFailedBatches(job.queueKey, int64(job.checkIntervalChunk))
	log.Debug().
		AnErr("error", err).
		Int("itemsToProcess", len(items)).
		Msg("doing regular dead letter check")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch next queued chunk: %w", err)
	}
	var currStats Stats
	for _, item := range items {
		currStats.NumFetched++
		if item.Created.IsZero() {
			item.Created = time.Now().In(job.tz)
		}
		id, err := job.archive.InsertFailedBatch(item)
		if err != nil {
			log.Error().
				Err(err).
				Str("runId", item.RunID).
				Int("batchNum", item.BatchNum).
				Msg("failed to archive failed batch, moving to error queue")
			if err := job.queue.PushFailedBatch(job.errorQueueKey, item); err != nil {
				log.Error().Err(err).Msg("failed to insert error item")
			}
			currStats.NumErrors++
			continue
		}
		log.Debug().
			Int64("id", id).
			Str("runId", item.RunID).
			Int("batchNum", item.BatchNum).
			Msg("archived failed batch")
		currStats.NumInserted++
	}
	if len(items) > 0 {
		log.Info().
			Int("numInserted", currStats.NumInserted).
			Int("numErrors", currStats.NumErrors).
			Int("numFetched", currStats.NumFetched).
			Msg("regular dead letter report")
	}
	job.statsLock.Lock()
	job.stats.UpdateBy(currStats)
	job.statsLock.Unlock()
	return len(items), nil
}

func NewDeadLetterKeeper(
	queue FailedBatchQueue,
	archive FailedBatchArchive,
	conf *Conf,
	tz *time.Location,
) *DeadLetterKeeper {
	return &DeadLetterKeeper{
		queue:              queue,
		archive:            archive,
		queueKey:           conf.QueueKey,
		errorQueueKey:      conf.ErrorQueueKey,
		checkInterval:      conf.CheckInterval(),
		checkIntervalChunk: conf.CheckIntervalChunk,
		tz:                 tz,
	}
}
