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
	"zipfinder/archiver"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/rs/zerolog/log"
)

type ReplayStats struct {
	NumBatches  int `json:"numBatches"`
	NumResolved int `json:"numResolved"`
	NumFailed   int `json:"numFailed"`
	NumIndexed  int `json:"numIndexed"`
}

// Replayer submits archived failed batches again
type Replayer struct {
	archive archiver.FailedBatchArchive
	loader  *BulkLoader
}

// Replay loads up to limit pending batches of an index (empty index
// means all indexes) and tries to write them again. Successfully written
// batches are marked as resolved, the other ones stay pending with
// an increased number of attempts.
func (r *Replayer) Replay(ctx context.Context, index string, limit int) (ReplayStats, error) {
	var stats ReplayStats
	batches, err := r.archive.LoadPendingFailedBatches(index, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to replay failed batches: %w", err)
	}
	runIDs := collections.NewSet[string]()
	for _, fb := range batches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.NumBatches++
		runIDs.Add(fb.RunID)
		res, err := r.loader.submit(ctx, fb.Index, fb.Items)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.NumIndexed += res.numIndexed
		status := archiver.StatusResolved
		if err != nil || len(res.failed) > 0 {
			status = archiver.StatusPending
			stats.NumFailed++
			log.Warn().
				Err(err).
				Int64("id", fb.ID).
				Int("batchNum", fb.BatchNum).
				Int("numFailed", len(res.failed)).
				Str("reason", res.reason()).
				Msg("failed batch not replayed")

		} else {
			stats.NumResolved++
		}
		if err := r.archive.UpdateFailedBatchStatus(fb.ID, status, fb.NumAttempts+1); err != nil {
			return stats, fmt.Errorf("failed to replay failed batches: %w", err)
		}
	}
	log.Info().
		Strs("runIds", runIDs.ToSlice()).
		Int("numBatches", stats.NumBatches).
		Int("numResolved", stats.NumResolved).
		Int("numFailed", stats.NumFailed).
		Msg("replay finished")
	return stats, nil
}

func NewReplayer(archive archiver.FailedBatchArchive, loader *BulkLoader) *Replayer {
	return &Replayer{archive: archive, loader: loader}
}
