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

package main

import (
	"context"
	"fmt"
	"zipfinder/archiver"
	"zipfinder/checkpoint"
	"zipfinder/cleaner"
	"zipfinder/cnf"
	"zipfinder/indexer"
	"zipfinder/loader"
	"zipfinder/reporting"

	"github.com/rs/zerolog/log"
)

// services holds infrastructure shared by the commands. Optional
// parts (Redis, dead letter database, reporting) are nil/dummy when
// not configured.
type services struct {
	conf       *cnf.Conf
	backend    indexer.Backend
	rds        *archiver.RedisAdapter
	db         *archiver.MySQLOps
	reporting  reporting.IReporting
	deadLetter archiver.Sink
	keeper     *archiver.DeadLetterKeeper
	cleaner    *cleaner.Service
}

func (s *services) checkpoints() checkpoint.Store {
	if s.rds != nil {
		return checkpoint.NewRedisStore(s.rds)
	}
	return checkpoint.NullStore{}
}

func (s *services) newDriver(confirm loader.ConfirmFunc) (*loader.Driver, error) {
	dedup, err := loader.NewDeduplicator(s.conf.Loader.DedupStatePath)
	if err != nil {
		return nil, err
	}
	return loader.NewDriver(
		s.conf.Loader,
		s.backend,
		indexer.NewSchemaManager(s.backend, s.conf.SearchBackend.TextAnalyzer),
		s.checkpoints(),
		s.deadLetter,
		dedup,
		s.reporting,
		confirm,
		s.conf.TimezoneLocation(),
	), nil
}

// Start runs background jobs (reporting writer, dead letter keeper)
func (s *services) Start(ctx context.Context) {
	s.reporting.Start(ctx)
	if s.keeper != nil {
		s.keeper.Start(ctx)
	}
}

// StartCleaner runs the dead letter archive cleanup (if configured).
// It is meant for long running processes only.
func (s *services) StartCleaner(ctx context.Context) {
	if s.conf.Cleaner == nil || s.db == nil {
		return
	}
	if s.rds != nil {
		s.cleaner = cleaner.NewService(s.db, s.rds, s.conf.Cleaner, s.conf.TimezoneLocation())

	} else {
		s.cleaner = cleaner.NewService(s.db, nil, s.conf.Cleaner, s.conf.TimezoneLocation())
	}
	s.cleaner.Start(ctx)
}

func (s *services) Close(ctx context.Context) {
	if s.cleaner != nil {
		if err := s.cleaner.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("failed to stop cleaner")
		}
	}
	if s.keeper != nil {
		if err := s.keeper.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("failed to stop dead letter keeper")
		}
	}
	if err := s.reporting.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop reporting")
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close dead letter database")
		}
	}
	if s.rds != nil {
		if err := s.rds.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
	if err := s.backend.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close search backend")
	}
}

func newReporting(conf *cnf.Conf) (reporting.IReporting, error) {
	if conf.Reporting == nil {
		log.Warn().Msg("reporting not configured, run statistics will be only logged")
		return &reporting.DummyWriter{}, nil
	}
	return reporting.NewStatusWriter(*conf.Reporting, conf.TimezoneLocation())
}

func newDeadLetterSink(conf *cnf.Conf, rds *archiver.RedisAdapter, db *archiver.MySQLOps) archiver.Sink {
	if rds != nil {
		return archiver.NewRedisSink(rds, conf.DeadLetter.QueueKey)
	}
	if db != nil {
		return archiver.NewMySQLSink(db)
	}
	log.Warn().Msg("neither Redis nor deadLetterDb configured, failed documents will be only logged")
	return &archiver.LogSink{}
}

// openServices connects all the configured infrastructure.
// Redis must stay usable after a command context is cancelled
// (final checkpoint, dead letter flush).
func openServices(conf *cnf.Conf) (*services, error) {
	backend, err := indexer.NewBackend(conf.SearchBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to open services: %w", err)
	}
	ans := &services{conf: conf, backend: backend}
	if conf.Redis.IsConfigured() {
		ans.rds = archiver.NewRedisAdapter(context.Background(), conf.Redis)
		if err := ans.rds.Ping(); err != nil {
			return nil, fmt.Errorf("failed to open services: %w", err)
		}
		log.Info().Str("redis", ans.rds.String()).Msg("connected to Redis")
	}
	if conf.DeadLetterDB.IsConfigured() {
		db, err := archiver.DBOpen(conf.DeadLetterDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open services: %w", err)
		}
		ans.db = archiver.NewMySQLOps(db, conf.TimezoneLocation())
		if err := ans.db.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to open services: %w", err)
		}
	}
	ans.reporting, err = newReporting(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open services: %w", err)
	}
	ans.deadLetter = newDeadLetterSink(conf, ans.rds, ans.db)
	if ans.rds != nil && ans.db != nil {
		ans.keeper = archiver.NewDeadLetterKeeper(
			ans.rds, ans.db, conf.DeadLetter, conf.TimezoneLocation())
	}
	return ans, nil
}
