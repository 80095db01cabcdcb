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

package checkpoint

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	keyPrefix = "zipfinder:checkpoint"
)

// Store keeps the last committed source row of a load
// so an interrupted load can continue from there.
type Store interface {

	// Load returns the last committed row. The second return
	// value is false if there is no checkpoint for the key.
	Load(key string) (int, bool, error)

	Save(key string, lastRow int) error

	Clear(key string) error
}

// Key derives a checkpoint key from an index name and
// the base name of a source file.
func Key(index, sourcePath string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, index, filepath.Base(sourcePath))
}

// ----------------------

type kvStore interface {
	Get(k string) (string, error)
	Set(k string, v any) error
	Del(k string) error
}

type RedisStore struct {
	kv kvStore
}

func (s *RedisStore) Load(key string) (int, bool, error) {
	v, err := s.kv.Get(key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load checkpoint %s: %w", key, err)
	}
	if v == "" {
		return 0, false, nil
	}
	row, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load checkpoint %s: %w", key, err)
	}
	return row, true, nil
}

func (s *RedisStore) Save(key string, lastRow int) error {
	if err := s.kv.Set(key, strconv.Itoa(lastRow)); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(key string) error {
	if err := s.kv.Del(key); err != nil {
		return fmt.Errorf("failed to clear checkpoint %s: %w", key, err)
	}
	return nil
}

func NewRedisStore(kv kvStore) *RedisStore {
	return &RedisStore{kv: kv}
}

// ----------------------

// NullStore is used when resuming is disabled
type NullStore struct{}

func (s NullStore) Load(key string) (int, bool, error) {
	return 0, false, nil
}

func (s NullStore) Save(key string, lastRow int) error {
	return nil
}

func (s NullStore) Clear(key string) error {
	return nil
}

// ----------------------

type MemoryStore struct {
	data map[string]int
	lock sync.Mutex
}

func (s *MemoryStore) Load(key string) (int, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Save(key string, lastRow int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data[key] = lastRow
	return nil
}

func (s *MemoryStore) Clear(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.data, key)
	return nil
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]int)}
}
