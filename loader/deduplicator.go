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
	"os"

	"github.com/bits-and-blooms/bloom"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	bloomFilterNumBits       = 10000000
	bloomFilterProbCollision = 0.001
)

// Deduplicator tracks document ids already sent within a load.
// False positives are possible so a match means "probably seen".
type Deduplicator struct {
	items           *bloom.BloomFilter
	storageFilePath string
}

func (dd *Deduplicator) StoreToDisk() error {
	if dd.storageFilePath == "" {
		return nil
	}
	f, err := os.OpenFile(dd.storageFilePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to store deduplicator state to disk: %w", err)
	}
	defer f.Close()
	_, err = dd.items.WriteTo(f)
	if err != nil {
		return fmt.Errorf("failed to store deduplicator state to disk: %w", err)
	}
	return nil
}

func (dd *Deduplicator) LoadFromDisk() error {
	f, err := os.Open(dd.storageFilePath)
	if err != nil {
		return fmt.Errorf("failed to load deduplicator state from disk: %w", err)
	}
	defer f.Close()
	_, err = dd.items.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("failed to load deduplicator state from disk: %w", err)
	}
	return nil
}

func (dd *Deduplicator) Reset() {
	log.Debug().Msg("performing deduplicator reset")
	dd.items.ClearAll()
}

// TestAndAdd adds the id and tells whether it has (probably)
// been added before.
func (dd *Deduplicator) TestAndAdd(docID string) bool {
	return dd.items.TestAndAddString(docID)
}

func NewDeduplicator(stateFilePath string) (*Deduplicator, error) {
	d := &Deduplicator{
		items:           bloom.NewWithEstimates(bloomFilterNumBits, bloomFilterProbCollision),
		storageFilePath: stateFilePath,
	}
	if stateFilePath == "" {
		return d, nil
	}
	isf, err := fs.IsFile(stateFilePath)
	if err != nil {
		return d, fmt.Errorf("failed to init Deduplicator: %w", err)
	}
	if isf {
		if err := d.LoadFromDisk(); err != nil {
			return d, fmt.Errorf("failed to init Deduplicator: %w", err)
		}
		log.Info().Str("file", stateFilePath).Msg("loaded previously stored dedup. state")
	}
	return d, nil
}
