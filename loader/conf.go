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
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"
	"zipfinder/address"
	"zipfinder/source"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	dfltWindowSize          = 1000
	dfltWorkers             = 1
	dfltMaxAttempts         = 4
	dfltRetryInitialBackoff = "1s"
	dfltRetryMaxBackoff     = "16s"
	maxWorkers              = 32
)

// Conf configures loading of address sources. Please note that
// the instance should be treated as ready only after
// ValidateAndDefaults is called.
type Conf struct {

	// WindowSize is the number of source rows read and submitted
	// as a single bulk request
	WindowSize int `json:"windowSize"`

	IDStrategy address.IDStrategy `json:"idStrategy"`

	// Workers specifies how many bulk requests can be in flight
	// at the same time. Value 1 means strictly sequential loading.
	Workers int `json:"workers"`

	// MaxAttempts is the max. number of submissions of a single batch
	// (including the first one)
	MaxAttempts int `json:"maxAttempts"`

	// RetryInitialBackoff is a string encoded (1s, 2m etc.) delay
	// before the first retry. Each next delay is doubled.
	RetryInitialBackoff string `json:"retryInitialBackoff"`

	RetryMaxBackoff string `json:"retryMaxBackoff"`

	// DedupStatePath is a file where the document id filter is stored
	// between runs so a resumed load can detect duplicates too.
	// Empty value disables persisting.
	DedupStatePath string `json:"dedupStatePath"`

	Policy address.Policy `json:"policy"`

	// Sheet is a workbook sheet to read from. Empty value means
	// the first sheet.
	Sheet string `json:"sheet"`

	CSVDelimiter string `json:"csvDelimiter"`
}

func (conf *Conf) RetryInitialBackoffDur() time.Duration {
	dur, err := datetime.ParseDuration(conf.RetryInitialBackoff)
	if err != nil {
		panic(err) // ValidateAndDefaults() is expected to be called first
	}
	return dur
}

func (conf *Conf) RetryMaxBackoffDur() time.Duration {
	dur, err := datetime.ParseDuration(conf.RetryMaxBackoff)
	if err != nil {
		panic(err)
	}
	return dur
}

func (conf *Conf) SourceOptions() source.Options {
	ans := source.Options{Sheet: conf.Sheet}
	if conf.CSVDelimiter != "" {
		ans.CSVDelimiter, _ = utf8.DecodeRuneInString(conf.CSVDelimiter)
	}
	return ans
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `loader` section")
	}
	if conf.WindowSize <= 0 {
		conf.WindowSize = dfltWindowSize
		log.Warn().
			Int("value", conf.WindowSize).
			Msg("loader `windowSize` not set, using default")
	}
	if conf.IDStrategy == "" {
		conf.IDStrategy = address.IDStrategyNatural
		log.Warn().
			Str("value", string(conf.IDStrategy)).
			Msg("loader `idStrategy` not set, using default")
	}
	if err := conf.IDStrategy.Validate(); err != nil {
		return fmt.Errorf("failed to validate loader `idStrategy`: %w", err)
	}
	if conf.Workers <= 0 {
		conf.Workers = dfltWorkers
		log.Warn().
			Int("value", conf.Workers).
			Msg("loader `workers` not set, using default")
	}
	if conf.Workers > maxWorkers {
		return fmt.Errorf("loader `workers` must be <= %d", maxWorkers)
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = dfltMaxAttempts
		log.Warn().
			Int("value", conf.MaxAttempts).
			Msg("loader `maxAttempts` not set, using default")
	}
	if conf.RetryInitialBackoff == "" {
		conf.RetryInitialBackoff = dfltRetryInitialBackoff
		log.Warn().
			Str("value", conf.RetryInitialBackoff).
			Msg("loader `retryInitialBackoff` not set, using default")
	}
	if _, err := datetime.ParseDuration(conf.RetryInitialBackoff); err != nil {
		return fmt.Errorf("failed to validate retryInitialBackoff: %w", err)
	}
	if conf.RetryMaxBackoff == "" {
		conf.RetryMaxBackoff = dfltRetryMaxBackoff
		log.Warn().
			Str("value", conf.RetryMaxBackoff).
			Msg("loader `retryMaxBackoff` not set, using default")
	}
	if _, err := datetime.ParseDuration(conf.RetryMaxBackoff); err != nil {
		return fmt.Errorf("failed to validate retryMaxBackoff: %w", err)
	}
	if conf.RetryMaxBackoffDur() < conf.RetryInitialBackoffDur() {
		return fmt.Errorf("retryMaxBackoff must be >= retryInitialBackoff")
	}
	dflt := address.DefaultPolicy()
	if conf.Policy.MinCityIDLen <= 0 {
		conf.Policy.MinCityIDLen = dflt.MinCityIDLen
	}
	if conf.Policy.MinStreetIDLen <= 0 {
		conf.Policy.MinStreetIDLen = dflt.MinStreetIDLen
	}
	if conf.Policy.MinZipLen <= 0 {
		conf.Policy.MinZipLen = dflt.MinZipLen
	}
	if utf8.RuneCountInString(conf.CSVDelimiter) > 1 {
		return fmt.Errorf("loader `csvDelimiter` must be a single character")
	}
	if conf.DedupStatePath != "" {
		isDir, err := fs.IsDir(filepath.Dir(conf.DedupStatePath))
		if err != nil {
			return fmt.Errorf("failed to validate dedupStatePath: %w", err)
		}
		if !isDir {
			return fmt.Errorf("directory of dedupStatePath does not exist")
		}
	}
	return nil
}
