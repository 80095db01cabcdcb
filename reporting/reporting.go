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
	"fmt"
	"time"

	"github.com/czcorpus/hltscl"
	"github.com/rs/zerolog/log"
)

/*
Expected tables:

create table zipfinder_batch_stats (
  "time" timestamp with time zone NOT NULL,
  batch_num int,
  min_row int,
  max_row int,
  num_rows int,
  num_rejected int,
  num_duplicates int,
  num_indexed int,
  num_failed int,
  num_retries int
);

select create_hypertable('zipfinder_batch_stats', 'time');

create table zipfinder_run_stats (
  "time" timestamp with time zone NOT NULL,
  last_row int,
  num_batches int,
  num_rows int,
  num_rejected int,
  num_duplicates int,
  num_indexed int,
  num_failed int,
  num_retries int,
  proc_time_ms int
);

select create_hypertable('zipfinder_run_stats', 'time');

*/

type StatusWriter struct {
	batchWriter *hltscl.TableWriter
	runWriter   *hltscl.TableWriter
	batchCh     chan<- hltscl.Entry
	runCh       chan<- hltscl.Entry
	batchErrCh  <-chan hltscl.WriteError
	runErrCh    <-chan hltscl.WriteError
	location    *time.Location
}

func (job *StatusWriter) logWriteError(err hltscl.WriteError) {
	log.Error().
		Err(err.Err).
		Str("entry", err.Entry.String()).
		Msg("error writing data to TimescaleDB")
}

func (job *StatusWriter) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close StatusWriter")
				return
			case err := <-job.batchErrCh:
				job.logWriteError(err)
			case err := <-job.runErrCh:
				job.logWriteError(err)
			}
		}
	}()
}

func (job *StatusWriter) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping StatusWriter")
	return nil
}

func (job *StatusWriter) WriteBatchStatus(item BatchStats) {
	if job.batchWriter != nil {
		job.batchCh <- *job.batchWriter.NewEntry(time.Now().In(job.location)).
			Int("batch_num", item.BatchNum).
			Int("min_row", item.MinRow).
			Int("max_row", item.MaxRow).
			Int("num_rows", item.NumRows).
			Int("num_rejected", item.NumRejected).
			Int("num_duplicates", item.NumDuplicates).
			Int("num_indexed", item.NumIndexed).
			Int("num_failed", item.NumFailed).
			Int("num_retries", item.NumRetries)
	}
}

func (job *StatusWriter) WriteRunStatus(item RunStats) {
	if job.runWriter != nil {
		job.runCh <- *job.runWriter.NewEntry(time.Now().In(job.location)).
			Int("last_row", item.LastRow).
			Int("num_batches", item.NumBatches).
			Int("num_rows", item.NumRows).
			Int("num_rejected", item.NumRejected).
			Int("num_duplicates", item.NumDuplicates).
			Int("num_indexed", item.NumIndexed).
			Int("num_failed", item.NumFailed).
			Int("num_retries", item.NumRetries).
			Int("proc_time_ms", int(item.ProcTime.Milliseconds()))
	}
}

func NewStatusWriter(conf hltscl.PgConf, tz *time.Location) (*StatusWriter, error) {
	conn, err := hltscl.CreatePool(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create reporting status writer: %w", err)
	}
	batchWriter := hltscl.NewTableWriter(conn, "zipfinder_batch_stats", "time", tz)
	batchCh, batchErrCh := batchWriter.Activate()
	runWriter := hltscl.NewTableWriter(conn, "zipfinder_run_stats", "time", tz)
	runCh, runErrCh := runWriter.Activate()
	return &StatusWriter{
		batchWriter: batchWriter,
		runWriter:   runWriter,
		batchCh:     batchCh,
		runCh:       runCh,
		batchErrCh:  batchErrCh,
		runErrCh:    runErrCh,
		location:    tz,
	}, nil
}
