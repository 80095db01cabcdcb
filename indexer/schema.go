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

package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SchemaManager creates and removes address indexes.
type SchemaManager struct {
	backend Backend
	mapping Mapping
}

func (sm *SchemaManager) Mapping() Mapping {
	return sm.mapping
}

// CreateIndex creates an index with the address mapping. Creating
// an existing index is an error (ErrIndexExists).
func (sm *SchemaManager) CreateIndex(ctx context.Context, name string) error {
	return sm.backend.CreateIndex(ctx, name, sm.mapping)
}

// DeleteIndex removes an index. ErrIndexNotFound is returned
// in case there is nothing to delete.
func (sm *SchemaManager) DeleteIndex(ctx context.Context, name string) error {
	return sm.backend.DeleteIndex(ctx, name)
}

// Recreate deletes an index (if it exists) and creates it again
// with an empty content.
func (sm *SchemaManager) Recreate(ctx context.Context, name string) error {
	err := sm.DeleteIndex(ctx, name)
	if errors.Is(err, ErrIndexNotFound) {
		log.Error().Str("index", name).Msg("index to delete not found, continuing")

	} else if err != nil {
		return fmt.Errorf("failed to recreate index: %w", err)
	}
	if err := sm.CreateIndex(ctx, name); err != nil {
		return fmt.Errorf("failed to recreate index: %w", err)
	}
	return nil
}

// EnsureIndex creates the index only if it does not exist yet.
// The returned bool tells whether the index has been created.
func (sm *SchemaManager) EnsureIndex(ctx context.Context, name string) (bool, error) {
	exists, err := sm.backend.IndexExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to ensure index: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := sm.CreateIndex(ctx, name); err != nil {
		return false, fmt.Errorf("failed to ensure index: %w", err)
	}
	return true, nil
}

func NewSchemaManager(backend Backend, textAnalyzer string) *SchemaManager {
	return &SchemaManager{
		backend: backend,
		mapping: AddressMapping(textAnalyzer),
	}
}

// NewBackend creates a backend according to the configuration
func NewBackend(conf *Conf) (Backend, error) {
	switch conf.Type {
	case BackendElastic:
		backend, err := NewElasticBackend(conf)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case BackendOpenSearch:
		backend, err := NewOpenSearchBackend(context.Background(), conf)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case BackendBleve:
		return NewBleveBackend(conf.IndexDirPath), nil
	}
	return nil, fmt.Errorf("unknown search backend type %s", conf.Type)
}
