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
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"zipfinder/address"

	"github.com/blevesearch/bleve/v2"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	bleveClearChunkSize = 1000
)

// BleveBackend keeps each address index in its own bleve index
// stored in a subdirectory of rootDir. With an empty rootDir,
// indexes are kept in memory.
type BleveBackend struct {
	rootDir string
	indexes map[string]bleve.Index
	mu      sync.Mutex
}

func (b *BleveBackend) indexPath(name string) string {
	return filepath.Join(b.rootDir, name)
}

func (b *BleveBackend) isOnDisk(name string) (bool, error) {
	if b.rootDir == "" {
		return false, nil
	}
	return fs.IsDir(b.indexPath(name))
}

// getIndex returns an opened index. The lock must be held by the caller.
func (b *BleveBackend) getIndex(name string) (bleve.Index, error) {
	if idx, ok := b.indexes[name]; ok {
		return idx, nil
	}
	if b.rootDir == "" {
		return nil, ErrIndexNotFound
	}
	idx, err := bleve.Open(b.indexPath(name))
	if err == bleve.ErrorIndexMetaMissing || err == bleve.ErrorIndexPathDoesNotExist {
		return nil, ErrIndexNotFound

	} else if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}
	b.indexes[name] = idx
	return idx, nil
}

func (b *BleveBackend) CreateIndex(ctx context.Context, name string, mapping Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indexes[name]; ok {
		return fmt.Errorf("failed to create index %s: %w", name, ErrIndexExists)
	}
	onDisk, err := b.isOnDisk(name)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	if onDisk {
		return fmt.Errorf("failed to create index %s: %w", name, ErrIndexExists)
	}
	bmapping, err := mapping.BleveMapping()
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	var idx bleve.Index
	if b.rootDir == "" {
		idx, err = bleve.NewMemOnly(bmapping)

	} else {
		idx, err = bleve.New(b.indexPath(name), bmapping)
	}
	if err == bleve.ErrorIndexPathExists {
		return fmt.Errorf("failed to create index %s: %w", name, ErrIndexExists)

	} else if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	b.indexes[name] = idx
	log.Info().Str("index", name).Msg("created index")
	return nil
}

func (b *BleveBackend) DeleteIndex(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, opened := b.indexes[name]
	if opened {
		if err := idx.Close(); err != nil {
			log.Error().Err(err).Str("index", name).Msg("failed to close index before deletion")
		}
		delete(b.indexes, name)
	}
	onDisk, err := b.isOnDisk(name)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	if !onDisk && !opened {
		return fmt.Errorf("failed to delete index %s: %w", name, ErrIndexNotFound)
	}
	if onDisk {
		if err := os.RemoveAll(b.indexPath(name)); err != nil {
			return fmt.Errorf("failed to delete index %s: %w", name, err)
		}
	}
	log.Info().Str("index", name).Msg("deleted index")
	return nil
}

func (b *BleveBackend) IndexExists(ctx context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indexes[name]; ok {
		return true, nil
	}
	return b.isOnDisk(name)
}

func (b *BleveBackend) ClearIndex(ctx context.Context, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.getIndex(name)
	if err != nil {
		return 0, fmt.Errorf("failed to clear index %s: %w", name, err)
	}
	var numDeleted int
	for {
		if err := ctx.Err(); err != nil {
			return numDeleted, fmt.Errorf("failed to clear index %s: %w", name, err)
		}
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), bleveClearChunkSize, 0, false)
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return numDeleted, fmt.Errorf("failed to clear index %s: %w", name, err)
		}
		if len(res.Hits) == 0 {
			break
		}
		batch := idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return numDeleted, fmt.Errorf("failed to clear index %s: %w", name, err)
		}
		numDeleted += len(res.Hits)
	}
	log.Info().Str("index", name).Int("numDeleted", numDeleted).Msg("cleared index")
	return numDeleted, nil
}

func (b *BleveBackend) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make(map[string]bool)
	for name := range b.indexes {
		names[name] = true
	}
	if b.rootDir != "" {
		entries, err := os.ReadDir(b.rootDir)
		if err != nil {
			return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				names[entry.Name()] = true
			}
		}
	}
	ans := make([]IndexInfo, 0, len(names))
	for name := range names {
		idx, err := b.getIndex(name)
		if errors.Is(err, ErrIndexNotFound) {
			continue // not a bleve index

		} else if err != nil {
			return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", err)
		}
		count, err := idx.DocCount()
		if err != nil {
			return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", err)
		}
		ans = append(ans, IndexInfo{Name: name, NumDocs: int(count), Status: "open"})
	}
	sort.Slice(ans, func(i, j int) bool { return ans[i].Name < ans[j].Name })
	return ans, nil
}

func recordToBleveDoc(rec address.Record) map[string]any {
	return map[string]any{
		"city_id":      rec.CityID,
		"city_name":    rec.CityName,
		"street_id":    rec.StreetID,
		"street_name":  rec.StreetName,
		"house_number": rec.HouseNumber,
		"entrance":     rec.Entrance,
		"zip_code":     rec.ZipCode,
		"remark":       rec.Remark,
		"updated":      rec.Updated,
		"timestamp":    rec.Timestamp,
		"full_address": rec.FullAddress,
	}
}

func (b *BleveBackend) Bulk(ctx context.Context, name string, items []BulkItem) (BulkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.getIndex(name)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to perform bulk write: %w", err)
	}
	var ans BulkResult
	batch := idx.NewBatch()
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := batch.Index(id, recordToBleveDoc(item.Doc)); err != nil {
			ans.Failures = append(ans.Failures, ItemFailure{Position: i, ID: id, Reason: err.Error()})
			continue
		}
		ans.NumIndexed++
	}
	if err := idx.Batch(batch); err != nil {
		return BulkResult{}, fmt.Errorf("failed to perform bulk write: %w", err)
	}
	return ans, nil
}

func stringField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// dateField reads a stored date which bleve may return in RFC3339
func dateField(fields map[string]any, name string) string {
	s := stringField(fields, name)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(address.DateTimeLayout)
	}
	return s
}

func (b *BleveBackend) Search(ctx context.Context, name string, query LookupQuery) (*SearchResult, error) {
	b.mu.Lock()
	idx, err := b.getIndex(name)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", name, err)
	}
	cityQuery := bleve.NewMatchQuery(query.Address)
	cityQuery.SetField("city_name")
	streetQuery := bleve.NewMatchQuery(query.Address)
	streetQuery.SetField("street_name")
	fuzzyQuery := bleve.NewMatchQuery(query.Address)
	fuzzyQuery.SetField("full_address")
	fuzzyQuery.SetFuzziness(1)
	houseQuery := bleve.NewMatchQuery(query.HouseNumber)
	houseQuery.SetField("house_number")

	bquery := bleve.NewBooleanQuery()
	bquery.AddMust(houseQuery)
	if query.Address != "" {
		bquery.AddShould(cityQuery, streetQuery, fuzzyQuery)
	}
	req := bleve.NewSearchRequestOptions(bquery, query.Size, 0, false)
	req.Fields = []string{"*"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", name, err)
	}
	ans := &SearchResult{
		Took: int(res.Took / time.Millisecond),
		Hits: Hits{
			Total:    HitsTotal{Value: int(res.Total), Relation: "eq"},
			MaxScore: res.MaxScore,
			Hits:     make([]Hit, 0, len(res.Hits)),
		},
	}
	for _, hit := range res.Hits {
		ans.Hits.Hits = append(ans.Hits.Hits, Hit{
			Index: name,
			ID:    hit.ID,
			Score: hit.Score,
			Source: address.Record{
				CityID:      stringField(hit.Fields, "city_id"),
				CityName:    stringField(hit.Fields, "city_name"),
				StreetID:    stringField(hit.Fields, "street_id"),
				StreetName:  stringField(hit.Fields, "street_name"),
				HouseNumber: stringField(hit.Fields, "house_number"),
				Entrance:    stringField(hit.Fields, "entrance"),
				ZipCode:     stringField(hit.Fields, "zip_code"),
				Remark:      stringField(hit.Fields, "remark"),
				Updated:     dateField(hit.Fields, "updated"),
				Timestamp:   dateField(hit.Fields, "timestamp"),
				FullAddress: stringField(hit.Fields, "full_address"),
			},
		})
	}
	return ans, nil
}

func (b *BleveBackend) Count(ctx context.Context, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.getIndex(name)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, err)
	}
	count, err := idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, err)
	}
	return int(count), nil
}

func (b *BleveBackend) Ping(ctx context.Context) error {
	if b.rootDir == "" {
		return nil
	}
	isDir, err := fs.IsDir(b.rootDir)
	if err != nil {
		return fmt.Errorf("failed to ping search backend: %w", err)
	}
	if !isDir {
		return fmt.Errorf("failed to ping search backend: index dir %s not found", b.rootDir)
	}
	return nil
}

func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lastErr error
	for name, idx := range b.indexes {
		if err := idx.Close(); err != nil {
			log.Error().Err(err).Str("index", name).Msg("failed to close index")
			lastErr = err
		}
		delete(b.indexes, name)
	}
	return lastErr
}

func NewBleveBackend(rootDir string) *BleveBackend {
	return &BleveBackend{
		rootDir: rootDir,
		indexes: make(map[string]bleve.Index),
	}
}
