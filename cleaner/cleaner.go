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

package cleaner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dtFormat   = "2006-01-02T15:04:05"
	nightStart = 22
	nightEnd   = 6
)

type resolvedBatchArchive interface {
	RemoveResolvedFailedBatches(olderThan time.Time, limit int) (int, error)
}

// statusStore keeps the time of the last cleanup so more
// instances sharing the same Redis do not clean up at once
type statusStore interface {
	Get(key string) (string, error)
	Set(key string, value any) error
}

type Stats struct {
	NumRuns    int       `json:"numRuns"`
	NumRemoved int       `json:"numRemoved"`
	NumErrors  int       `json:"numErrors"`
	LastRun    time.Time `json:"lastRun"`
}

// Service periodically removes resolved failed batches
// older than the configured age from the dead letter archive.
type Service struct {
	conf           *Conf
	db             resolvedBatchArchive
	rdb            statusStore
	tz             *time.Location
	cleanupRunning bool
	stats          Stats
	statsLock      sync.Mutex
}

func (job *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(job.conf.CheckInterval())
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close Cleaner")
				ticker.Stop()
				return
			case <-ticker.C:
				if job.cleanupRunning {
					log.Warn().Msg("cannot run next cleanup - the previous not finished yet")

				} else {
					_, err := job.performCleanup(time.Now().In(job.tz))
					if err != nil {
						log.Error().Err(err).Msg("failed to perform cleanup")
					}
				}
			}
		}
	}()
}

func (job *Service) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping Cleaner")
	return nil
}

func (job *Service) GetStats() Stats {
	job.statsLock.Lock()
	defer job.statsLock.Unlock()
	return job.stats
}

func (job *Service) itemsPerTick(now time.Time) int {
	if now.Hour() >= nightStart || now.Hour() < nightEnd {
		return job.conf.NumProcessItemsPerTickNight
	}
	return job.conf.NumProcessItemsPerTick
}

// lastCleanup returns the time of the last cleanup performed
// by any instance. Zero time means "unknown".
func (job *Service) lastCleanup() (time.Time, error) {
	if job.rdb == nil {
		return time.Time{}, nil
	}
	lastDateRaw, err := job.rdb.Get(job.conf.StatusKey)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"failed to fetch last cleanup date from Redis (key %s): %w", job.conf.StatusKey, err)
	}
	if lastDateRaw == "" {
		return time.Time{}, nil
	}
	lastDate, err := time.ParseInLocation(dtFormat, lastDateRaw, job.tz)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"failed to parse last cleanup date in Redis (key %s): %w", job.conf.StatusKey, err)
	}
	return lastDate, nil
}

// performCleanup removes a chunk of old resolved batches. It returns
// the number of removed batches.
func (job *Service) performCleanup(now time.Time) (int, error) {
	job.cleanupRunning = true
	defer func() { job.cleanupRunning = false }()
	t0 := time.Now()

	lastDate, err := job.lastCleanup()
	if err != nil {
		return 0, err
	}
	if !lastDate.IsZero() && now.Sub(lastDate) < job.conf.CheckInterval() {
		log.Debug().
			Time("lastCleanup", lastDate).
			Msg("cleanup recently performed by other instance, skipping")
		return 0, nil
	}
	birthLimit := now.Add(-job.conf.MinAgeResolved())
	limit := job.itemsPerTick(now)
	log.Info().
		Time("lastCleanup", lastDate).
		Time("olderThan", birthLimit).
		Int("itemsToRemove", limit).
		Msg("performing dead letter archive cleanup")

	numRemoved, err := job.db.RemoveResolvedFailedBatches(birthLimit, limit)
	job.statsLock.Lock()
	job.stats.NumRuns++
	job.stats.LastRun = now
	if err != nil {
		job.stats.NumErrors++
	}
	job.stats.NumRemoved += numRemoved
	job.statsLock.Unlock()
	if err != nil {
		return 0, err
	}
	if job.rdb != nil {
		if err := job.rdb.Set(job.conf.StatusKey, now.Format(dtFormat)); err != nil {
			log.Error().Err(err).Msg("failed to store last cleanup date")
		}
	}
	log.Info().
		Int("numRemoved", numRemoved).
		Float64("procTime", time.Since(t0).Seconds()).
		Msg("cleanup done")
	return numRemoved, nil
}

// NewService creates a cleanup job. The rdb argument may be nil.
func NewService(
	db resolvedBatchArchive,
	rdb statusStore,
	conf *Conf,
	tz *time.Location,
) *Service {
	return &Service{
		conf: conf,
		db:   db,
		rdb:  rdb,
		tz:   tz,
	}
}
