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
	"encoding/json"
	"fmt"
	"io"
	"time"
	"zipfinder/address"
	"zipfinder/archiver"
	"zipfinder/checkpoint"
	"zipfinder/indexer"
	"zipfinder/reporting"
	"zipfinder/source"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ConfirmFunc asks a user whether to perform a destructive action
type ConfirmFunc func(prompt string) (bool, error)

type RunOptions struct {
	SourcePath string
	Index      string

	// Reindex asks (via ConfirmFunc) for deleting and recreating
	// the index before loading
	Reindex bool

	// Resume continues from the last committed row of a previous
	// (interrupted) run of the same source and index
	Resume bool

	// DryRun only prints normalized records to Out
	DryRun bool
	Out    io.Writer
}

type preparedBatch struct {
	batch Batch
	stats reporting.BatchStats
}

// Driver runs the whole load of a source file:
// (reindex prompt) -> schema creation -> read, transform and load
// windows until the end of data.
type Driver struct {
	conf        *Conf
	backend     indexer.Backend
	schema      *indexer.SchemaManager
	checkpoints checkpoint.Store
	deadLetter  archiver.Sink
	dedup       *Deduplicator
	reporting   reporting.IReporting
	confirm     ConfirmFunc
	tz          *time.Location
}

func (d *Driver) prepareSchema(ctx context.Context, opts RunOptions, ckptKey string) (int, error) {
	var recreated bool
	if opts.Reindex {
		ok, err := d.confirm(
			fmt.Sprintf("Index `%s` will be deleted and created again. Continue?", opts.Index))
		if err != nil {
			return 0, fmt.Errorf("failed to confirm reindexing: %w", err)
		}
		if ok {
			if err := d.schema.Recreate(ctx, opts.Index); err != nil {
				return 0, err
			}
			if err := d.checkpoints.Clear(ckptKey); err != nil {
				return 0, err
			}
			recreated = true
			log.Info().Str("index", opts.Index).Msg("index recreated")

		} else {
			log.Warn().Str("index", opts.Index).Msg("reindexing declined, loading into the existing index")
		}
	}
	if !recreated {
		created, err := d.schema.EnsureIndex(ctx, opts.Index)
		if err != nil {
			return 0, err
		}
		if created {
			log.Info().Str("index", opts.Index).Msg("index created")
		}
	}
	firstRow := source.FirstDataRow
	if opts.Resume && !recreated {
		lastRow, ok, err := d.checkpoints.Load(ckptKey)
		if err != nil {
			return 0, err
		}
		if ok {
			firstRow = lastRow + 1
			log.Info().
				Str("key", ckptKey).
				Int("lastRow", lastRow).
				Msg("resuming previous load")
		}
	}
	return firstRow, nil
}

func (d *Driver) prepareBatch(
	runID string,
	window source.Window,
	rows []address.RawRow,
	eod bool,
	transformer *address.Transformer,
) preparedBatch {
	ans := preparedBatch{
		batch: Batch{
			Num:     window.Num,
			Window:  window,
			Records: make([]address.Record, 0, len(rows)),
		},
		stats: reporting.BatchStats{
			RunID:    runID,
			BatchNum: window.Num,
			MinRow:   window.MinRow,
			MaxRow:   window.MaxRow,
			NumRows:  len(rows),
		},
	}
	if eod {
		ans.stats.MaxRow = window.MinRow - 1
		if len(rows) > 0 {
			ans.stats.MaxRow = rows[len(rows)-1].RowNum
		}
		ans.batch.Window.MaxRow = ans.stats.MaxRow
	}
	for _, row := range rows {
		rec, rejection := transformer.Transform(row)
		if !rejection.IsZero() {
			log.Warn().
				Int("rowNum", row.RowNum).
				Str("field", rejection.Field).
				Str("reason", rejection.Reason).
				Msg("row rejected")
			ans.stats.NumRejected++
			continue
		}
		if docID := rec.DocID(d.conf.IDStrategy); docID != "" && d.dedup.TestAndAdd(docID) {
			log.Warn().
				Int("rowNum", row.RowNum).
				Str("docId", docID).
				Msg("duplicate document id, the previous document will be overwritten")
			ans.stats.NumDuplicates++
		}
		ans.batch.Records = append(ans.batch.Records, rec)
	}
	return ans
}

func (d *Driver) printBatch(out io.Writer, batch Batch) error {
	enc := json.NewEncoder(out)
	for _, rec := range batch.Records {
		item := indexer.BulkItem{ID: rec.DocID(d.conf.IDStrategy), Doc: rec}
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to print batch %d: %w", batch.Num, err)
		}
	}
	return nil
}

// loadGroup submits prepared batches concurrently. A failed batch
// does not stop the others and it is not considered a failure of the
// whole group (it has been dead-lettered), only cancellation is.
func (d *Driver) loadGroup(ctx context.Context, loader *BulkLoader, group []preparedBatch) error {
	var eg errgroup.Group
	eg.SetLimit(d.conf.Workers)
	for i := range group {
		item := &group[i]
		eg.Go(func() error {
			outcome, err := loader.Load(ctx, item.batch)
			item.stats.NumIndexed = outcome.NumIndexed
			item.stats.NumFailed = outcome.NumFailed
			item.stats.NumRetries = outcome.NumRetries
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().
					Err(err).
					Int("batchNum", item.batch.Num).
					Msg("batch not loaded, continuing with the next one")
			}
			return nil
		})
	}
	return eg.Wait()
}

func (d *Driver) commitGroup(ckptKey string, group []preparedBatch, stats *reporting.RunStats) {
	for _, item := range group {
		stats.UpdateBy(item.stats)
		d.reporting.WriteBatchStatus(item.stats)
		log.Info().
			Int("batchNum", item.stats.BatchNum).
			Int("minRow", item.stats.MinRow).
			Int("maxRow", item.stats.MaxRow).
			Int("numIndexed", item.stats.NumIndexed).
			Int("numRejected", item.stats.NumRejected).
			Int("numFailed", item.stats.NumFailed).
			Msg("batch processed")
	}
	lastRow := group[len(group)-1].stats.MaxRow
	if err := d.checkpoints.Save(ckptKey, lastRow); err != nil {
		log.Error().Err(err).Int("lastRow", lastRow).Msg("failed to save checkpoint")
	}
	if err := d.dedup.StoreToDisk(); err != nil {
		log.Error().Err(err).Msg("failed to store deduplicator state")
	}
}

// Run loads the whole source (or its remaining part in case
// of resuming). Bad rows and failed batches do not stop the run,
// only a source read error, a schema error or a cancellation does.
func (d *Driver) Run(ctx context.Context, opts RunOptions) (reporting.RunStats, error) {
	stats := reporting.RunStats{
		RunID:   uuid.New().String(),
		Index:   opts.Index,
		Source:  opts.SourcePath,
		Started: time.Now().In(d.tz),
	}
	if opts.Index == "" {
		return stats, fmt.Errorf("failed to run load: no index specified")
	}
	src, err := source.Open(opts.SourcePath, d.conf.SourceOptions())
	if err != nil {
		return stats, fmt.Errorf("failed to run load: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Str("source", opts.SourcePath).Msg("failed to close source")
		}
	}()
	log.Info().
		Str("runId", stats.RunID).
		Str("source", opts.SourcePath).
		Str("index", opts.Index).
		Int("totalRows", src.TotalRows()).
		Bool("dryRun", opts.DryRun).
		Msg("starting load")

	if opts.DryRun && opts.Out == nil {
		opts.Out = io.Discard
	}
	ckptKey := checkpoint.Key(opts.Index, opts.SourcePath)
	firstRow := source.FirstDataRow
	if !opts.DryRun {
		firstRow, err = d.prepareSchema(ctx, opts, ckptKey)
		if err != nil {
			return stats, fmt.Errorf("failed to run load: %w", err)
		}
	}
	if firstRow == source.FirstDataRow {
		d.dedup.Reset()
	}
	transformer := address.NewTransformer(d.conf.Policy, d.tz)
	loader := NewBulkLoader(d.backend, opts.Index, d.conf, d.deadLetter, stats.RunID)
	group := make([]preparedBatch, 0, d.conf.Workers)

	for window := range source.Windows(firstRow, src.TotalRows(), d.conf.WindowSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, eod, err := src.ReadWindow(window)
		if err != nil {
			return stats, fmt.Errorf("failed to read %s: %w", window, err)
		}
		prepared := d.prepareBatch(stats.RunID, window, rows, eod, transformer)
		if opts.DryRun {
			stats.UpdateBy(prepared.stats)
			if err := d.printBatch(opts.Out, prepared.batch); err != nil {
				return stats, err
			}

		} else {
			group = append(group, prepared)
			if len(group) >= d.conf.Workers {
				if err := d.loadGroup(ctx, loader, group); err != nil {
					return stats, err
				}
				d.commitGroup(ckptKey, group, &stats)
				group = group[:0]
			}
		}
		if eod {
			break
		}
	}
	if len(group) > 0 {
		if err := d.loadGroup(ctx, loader, group); err != nil {
			return stats, err
		}
		d.commitGroup(ckptKey, group, &stats)
	}
	if !opts.DryRun {
		if err := d.checkpoints.Clear(ckptKey); err != nil {
			log.Error().Err(err).Msg("failed to clear checkpoint of a finished load")
		}
	}
	stats.Finished = time.Now().In(d.tz)
	stats.ProcTime = stats.Finished.Sub(stats.Started)
	d.reporting.WriteRunStatus(stats)
	log.Info().
		Str("runId", stats.RunID).
		Int("lastRow", stats.LastRow).
		Int("numBatches", stats.NumBatches).
		Int("numRows", stats.NumRows).
		Int("numIndexed", stats.NumIndexed).
		Int("numRejected", stats.NumRejected).
		Int("numDuplicates", stats.NumDuplicates).
		Int("numFailed", stats.NumFailed).
		Str("procTime", stats.ProcTime.String()).
		Msg("load finished")
	return stats, nil
}

func NewDriver(
	conf *Conf,
	backend indexer.Backend,
	schema *indexer.SchemaManager,
	checkpoints checkpoint.Store,
	deadLetter archiver.Sink,
	dedup *Deduplicator,
	rep reporting.IReporting,
	confirm ConfirmFunc,
	tz *time.Location,
) *Driver {
	if checkpoints == nil {
		checkpoints = checkpoint.NullStore{}
	}
	if dedup == nil {
		dedup, _ = NewDeduplicator("")
	}
	if rep == nil {
		rep = &reporting.DummyWriter{}
	}
	if tz == nil {
		tz = time.Local
	}
	return &Driver{
		conf:        conf,
		backend:     backend,
		schema:      schema,
		checkpoints: checkpoints,
		deadLetter:  deadLetter,
		dedup:       dedup,
		reporting:   rep,
		confirm:     confirm,
		tz:          tz,
	}
}
