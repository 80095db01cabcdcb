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

package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"zipfinder/address"
	"zipfinder/archiver"
	"zipfinder/indexer"
	"zipfinder/source"
	"zipfinder/util"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog/log"
)

const (
	maxReportedReasons = 10
)

// Batch is a transformed window of source rows
type Batch struct {
	Num     int
	Window  source.Window
	Records []address.Record
}

type BatchOutcome struct {
	NumIndexed int
	NumFailed  int
	NumRetries int
}

type submitResult struct {
	numIndexed int
	numRetries int
	failed     []indexer.BulkItem
	reasons    []string
}

func (sr submitResult) reason() string {
	if len(sr.reasons) > maxReportedReasons {
		return strings.Join(sr.reasons[:maxReportedReasons], "; ") +
			fmt.Sprintf("; ... (%d more)", len(sr.reasons)-maxReportedReasons)
	}
	return strings.Join(sr.reasons, "; ")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// BulkLoader submits batches of records to a backend. Failed
// submissions are retried with an exponential backoff. Whatever cannot
// be written even after the last attempt is passed to the dead letter sink.
type BulkLoader struct {
	backend        indexer.Backend
	index          string
	idStrategy     address.IDStrategy
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	deadLetter     archiver.Sink
	runID          string
}

func (bl *BulkLoader) backoff(attempt int) time.Duration {
	return util.RetryBackoff(bl.initialBackoff, bl.maxBackoff, attempt)
}

func (bl *BulkLoader) submit(ctx context.Context, index string, items []indexer.BulkItem) (submitResult, error) {
	var ans submitResult
	pending := items
	for attempt := 1; ; attempt++ {
		res, err := bl.backend.Bulk(ctx, index, pending)
		if err != nil {
			if ctx.Err() != nil || !indexer.IsRetryable(err) || attempt >= bl.maxAttempts {
				ans.failed = append(ans.failed, pending...)
				ans.reasons = append(ans.reasons, err.Error())
				return ans, err
			}
			log.Warn().
				Err(err).
				Str("index", index).
				Int("numDocs", len(pending)).
				Int("attempt", attempt).
				Msg("bulk submission failed, going to retry")

		} else {
			ans.numIndexed += res.NumIndexed
			retry := make([]indexer.BulkItem, 0, len(res.Failures))
			for _, failure := range res.Failures {
				item := indexer.BulkItem{ID: failure.ID}
				if failure.Position >= 0 && failure.Position < len(pending) {
					item = pending[failure.Position]
				}
				if isRetryableStatus(failure.Status) && attempt < bl.maxAttempts {
					retry = append(retry, item)
					continue
				}
				ans.failed = append(ans.failed, item)
				ans.reasons = append(ans.reasons, fmt.Sprintf("%s: %s", failure.ID, failure.Reason))
			}
			if len(retry) == 0 {
				return ans, nil
			}
			log.Warn().
				Str("index", index).
				Int("numDocs", len(retry)).
				Int("attempt", attempt).
				Msg("some documents rejected by store, going to retry")
			pending = retry
		}
		if err := util.SleepWithContext(ctx, bl.backoff(attempt)); err != nil {
			ans.failed = append(ans.failed, pending...)
			ans.reasons = append(ans.reasons, err.Error())
			return ans, err
		}
		ans.numRetries++
	}
}

func (bl *BulkLoader) putDeadLetter(batch Batch, res submitResult) {
	if bl.deadLetter == nil {
		return
	}
	fb := archiver.FailedBatch{
		RunID:    bl.runID,
		Index:    bl.index,
		BatchNum: batch.Num,
		MinRow:   batch.Window.MinRow,
		MaxRow:   batch.Window.MaxRow,
		NumDocs:  len(res.failed),
		Reason:   res.reason(),
		Items:    res.failed,
		Status:   archiver.StatusPending,
		Created:  time.Now(),
	}
	if err := bl.deadLetter.Put(fb); err != nil {
		log.Error().
			Err(err).
			Int("batchNum", batch.Num).
			Msg("failed to write batch to dead letter storage, documents are lost")
	}
}

// Load submits a batch as a single bulk request (plus possible retries).
// An empty batch is a no-op. The returned error means that at least
// a part of the batch has not been written (such documents are in the
// dead letter storage).
func (bl *BulkLoader) Load(ctx context.Context, batch Batch) (BatchOutcome, error) {
	if len(batch.Records) == 0 {
		log.Info().
			Str("index", bl.index).
			Int("batchNum", batch.Num).
			Msg("empty batch, nothing to load")
		return BatchOutcome{}, nil
	}
	items := make([]indexer.BulkItem, len(batch.Records))
	for i, rec := range batch.Records {
		items[i] = indexer.BulkItem{ID: rec.DocID(bl.idStrategy), Doc: rec}
	}
	if e := log.Debug(); e.Enabled() {
		e.Int("batchNum", batch.Num).Msg(spew.Sdump(items))
	}
	res, err := bl.submit(ctx, bl.index, items)
	outcome := BatchOutcome{
		NumIndexed: res.numIndexed,
		NumFailed:  len(res.failed),
		NumRetries: res.numRetries,
	}
	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}
	if len(res.failed) > 0 {
		log.Error().
			Str("index", bl.index).
			Int("batchNum", batch.Num).
			Int("numDocs", len(items)).
			Int("numFailed", len(res.failed)).
			Str("reason", res.reason()).
			Msg("failed to load documents")
		bl.putDeadLetter(batch, res)
	}
	if err != nil {
		return outcome, fmt.Errorf("failed to load batch %d to %s: %w", batch.Num, bl.index, err)
	}
	return outcome, nil
}

// NewBulkLoader creates a loader for a single run. The deadLetter
// argument may be nil in which case failed documents are only logged.
func NewBulkLoader(
	backend indexer.Backend,
	index string,
	conf *Conf,
	deadLetter archiver.Sink,
	runID string,
) *BulkLoader {
	return &BulkLoader{
		backend:        backend,
		index:          index,
		idStrategy:     conf.IDStrategy,
		maxAttempts:    conf.MaxAttempts,
		initialBackoff: conf.RetryInitialBackoffDur(),
		maxBackoff:     conf.RetryMaxBackoffDur(),
		deadLetter:     deadLetter,
		runID:          runID,
	}
}
