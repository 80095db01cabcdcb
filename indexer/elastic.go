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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"
)

const (
	esErrAlreadyExists = "resource_already_exists_exception"
)

// ElasticBackend stores addresses in Elasticsearch. The same
// implementation serves OpenSearch (see NewOpenSearchBackend) as
// it talks to the cluster through the plain esapi layer which does
// not perform the Elasticsearch product check.
type ElasticBackend struct {
	client *esapi.API
}

type esErrorBody struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

type esErrorDetail struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// decodeError converts an error response into a StoreError
func decodeError(res *esapi.Response) *StoreError {
	ans := &StoreError{StatusCode: res.StatusCode}
	data, err := io.ReadAll(res.Body)
	if err != nil || len(data) == 0 {
		ans.Reason = http.StatusText(res.StatusCode)
		return ans
	}
	var body esErrorBody
	if err := json.Unmarshal(data, &body); err != nil || len(body.Error) == 0 {
		ans.Reason = string(data)
		return ans
	}
	var detail esErrorDetail
	if err := json.Unmarshal(body.Error, &detail); err == nil {
		ans.Type = detail.Type
		ans.Reason = detail.Reason
		return ans
	}
	var msg string
	if err := json.Unmarshal(body.Error, &msg); err == nil {
		ans.Reason = msg
		return ans
	}
	ans.Reason = string(body.Error)
	return ans
}

func (b *ElasticBackend) CreateIndex(ctx context.Context, name string, mapping Mapping) error {
	body, err := json.Marshal(mapping.ESBody())
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	res, err := b.client.Indices.Create(
		name,
		b.client.Indices.Create.WithBody(bytes.NewReader(body)),
		b.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		storeErr := decodeError(res)
		if storeErr.Type == esErrAlreadyExists {
			return fmt.Errorf("failed to create index %s: %w", name, ErrIndexExists)
		}
		return fmt.Errorf("failed to create index %s: %w", name, storeErr)
	}
	log.Info().Str("index", name).Msg("created index")
	return nil
}

func (b *ElasticBackend) DeleteIndex(ctx context.Context, name string) error {
	res, err := b.client.Indices.Delete(
		[]string{name},
		b.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("failed to delete index %s: %w", name, ErrIndexNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete index %s: %w", name, decodeError(res))
	}
	log.Info().Str("index", name).Msg("deleted index")
	return nil
}

func (b *ElasticBackend) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := b.client.Indices.Exists(
		[]string{name},
		b.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to test index %s: %w", name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("failed to test index %s: %w", name, decodeError(res))
}

func (b *ElasticBackend) ClearIndex(ctx context.Context, name string) (int, error) {
	res, err := b.client.DeleteByQuery(
		[]string{name},
		bytes.NewReader([]byte(`{"query":{"match_all":{}}}`)),
		b.client.DeleteByQuery.WithContext(ctx),
		b.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("failed to clear index %s: %w", name, ErrIndexNotFound)
	}
	if res.IsError() {
		return 0, fmt.Errorf("failed to clear index %s: %w", name, decodeError(res))
	}
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("failed to clear index %s: %w", name, err)
	}
	log.Info().Str("index", name).Int("numDeleted", resp.Deleted).Msg("cleared index")
	return resp.Deleted, nil
}

func (b *ElasticBackend) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	res, err := b.client.Cat.Indices(
		b.client.Cat.Indices.WithFormat("json"),
		b.client.Cat.Indices.WithContext(ctx),
	)
	if err != nil {
		return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", decodeError(res))
	}
	var items []map[string]string
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return []IndexInfo{}, fmt.Errorf("failed to list indexes: %w", err)
	}
	ans := make([]IndexInfo, 0, len(items))
	for _, item := range items {
		numDocs, _ := strconv.Atoi(item["docs.count"])
		ans = append(ans, IndexInfo{
			Name:    item["index"],
			NumDocs: numDocs,
			Health:  item["health"],
			Status:  item["status"],
		})
	}
	return ans, nil
}

func (b *ElasticBackend) Bulk(ctx context.Context, name string, items []BulkItem) (BulkResult, error) {
	payload, err := EncodeBulkPayload(name, items)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to prepare bulk write: %w", err)
	}
	if e := log.Debug(); e.Enabled() {
		e.Str("index", name).Msg(spew.Sdump(string(payload)))
	}
	res, err := b.client.Bulk(
		bytes.NewReader(payload),
		b.client.Bulk.WithIndex(name),
		b.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to perform bulk write: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return BulkResult{}, fmt.Errorf("failed to perform bulk write: %w", decodeError(res))
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to read bulk response: %w", err)
	}
	return parseBulkResponse(data)
}

// LookupQueryBody renders a lookup query as an Elasticsearch
// boolean query. The house number must match exactly, the rest
// of the address just improves scoring.
func LookupQueryBody(q LookupQuery) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  q.Address,
							"fields": []string{"city_name", "street_name"},
						},
					},
					map[string]any{
						"match": map[string]any{
							"full_address": map[string]any{
								"query":     q.Address,
								"fuzziness": "AUTO",
							},
						},
					},
				},
				"must": []any{
					map[string]any{
						"match": map[string]any{
							"house_number": q.HouseNumber,
						},
					},
				},
			},
		},
		"size": q.Size,
	}
}

func (b *ElasticBackend) Search(ctx context.Context, name string, query LookupQuery) (*SearchResult, error) {
	body, err := json.Marshal(LookupQueryBody(query))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare search query: %w", err)
	}
	res, err := b.client.Search(
		b.client.Search.WithIndex(name),
		b.client.Search.WithBody(bytes.NewReader(body)),
		b.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("failed to search index %s: %w", name, ErrIndexNotFound)
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to search index %s: %w", name, decodeError(res))
	}
	var ans SearchResult
	if err := json.NewDecoder(res.Body).Decode(&ans); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	return &ans, nil
}

func (b *ElasticBackend) Count(ctx context.Context, name string) (int, error) {
	res, err := b.client.Count(
		b.client.Count.WithIndex(name),
		b.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, ErrIndexNotFound)
	}
	if res.IsError() {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, decodeError(res))
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", name, err)
	}
	return resp.Count, nil
}

func (b *ElasticBackend) Ping(ctx context.Context) error {
	res, err := b.client.Ping(b.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping search backend: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to ping search backend: %w", &StoreError{StatusCode: res.StatusCode})
	}
	return nil
}

func (b *ElasticBackend) Close() error {
	return nil
}

func NewElasticBackend(conf *Conf) (*ElasticBackend, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: conf.Addresses,
		Username:  conf.Username,
		Password:  conf.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return &ElasticBackend{client: client.API}, nil
}
