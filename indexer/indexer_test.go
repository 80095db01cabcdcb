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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"zipfinder/address"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "address-to-zip-test"

func testRecord(zip, house, entrance, city, street string) address.Record {
	return address.Record{
		CityID:      "1001",
		CityName:    city,
		StreetID:    "20001",
		StreetName:  street,
		HouseNumber: house,
		Entrance:    entrance,
		ZipCode:     zip,
		Updated:     "2023-01-01 00:00:00",
		Timestamp:   "2024-05-06 07:08:09",
		FullAddress: city + " " + street,
	}
}

func TestEncodeBulkPayloadPairsLines(t *testing.T) {
	items := []BulkItem{
		{ID: "6100001-12-A", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
		{Doc: testRecord("3100001", "3", "", "Haifa", "Hagefen")},
	}
	payload, err := EncodeBulkPayload(testIndex, items)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(payload), "\n"))
	lines := strings.Split(strings.TrimSuffix(string(payload), "\n"), "\n")
	require.Len(t, lines, 4)

	var action map[string]map[string]string
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, testIndex, action["index"]["_index"])
	assert.Equal(t, "6100001-12-A", action["index"]["_id"])

	var doc address.Record
	assert.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "6100001", doc.ZipCode)

	action = nil
	assert.NoError(t, json.Unmarshal([]byte(lines[2]), &action))
	_, hasID := action["index"]["_id"]
	assert.False(t, hasID)
	assert.NoError(t, json.Unmarshal([]byte(lines[3]), &doc))
	assert.Equal(t, "3100001", doc.ZipCode)
}

func TestEncodeEmptyBulkPayload(t *testing.T) {
	payload, err := EncodeBulkPayload(testIndex, []BulkItem{})
	assert.NoError(t, err)
	assert.Len(t, payload, 0)
}

func TestParseBulkResponse(t *testing.T) {
	resp := `{"took":3,"errors":true,"items":[
		{"index":{"_index":"x","_id":"a","status":201}},
		{"index":{"_index":"x","_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [updated]"}}},
		{"index":{"_index":"x","_id":"c","status":200}}
	]}`
	res, err := parseBulkResponse([]byte(resp))
	assert.NoError(t, err)
	assert.Equal(t, 2, res.NumIndexed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Position)
	assert.Equal(t, "b", res.Failures[0].ID)
	assert.Equal(t, 400, res.Failures[0].Status)
	assert.Contains(t, res.Failures[0].Reason, "mapper_parsing_exception")
}

func TestAddressMappingESBody(t *testing.T) {
	body := AddressMapping("hebrew").ESBody()
	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "text", "analyzer": "hebrew"}, props["city_name"])
	assert.Equal(t, map[string]any{"type": "keyword"}, props["zip_code"])
	assert.Equal(t, map[string]any{"type": "text", "analyzer": "standard"}, props["house_number"])
	assert.Equal(t, map[string]any{"type": "date", "format": DateFormat}, props["updated"])
	assert.Equal(t, map[string]any{"type": "date", "format": DateFormat}, props["timestamp"])
	assert.Len(t, props, 11)
}

func TestDateFormatMatchesRecordLayout(t *testing.T) {
	assert.Equal(t, address.DateTimeLayout, javaDateToGoLayout(DateFormat))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(errors.New("the client noticed that the server is not Elasticsearch")))
	assert.False(t, IsRetryable(fmt.Errorf("failed to prepare bulk write: %w", errors.New("json: unsupported value"))))
	assert.True(t, IsRetryable(fmt.Errorf("bulk: %w", syscall.ECONNREFUSED)))
	assert.True(t, IsRetryable(fmt.Errorf("bulk: %w", io.ErrUnexpectedEOF)))
	assert.True(t, IsRetryable(&url.Error{Op: "Post", URL: "http://es:9200/_bulk", Err: io.EOF}))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}))
	assert.True(t, IsRetryable(fmt.Errorf("bulk: %w", &StoreError{StatusCode: 503})))
	assert.True(t, IsRetryable(&StoreError{StatusCode: 429}))
	assert.False(t, IsRetryable(&StoreError{StatusCode: 400}))
	assert.False(t, IsRetryable(fmt.Errorf("x: %w", context.Canceled)))
	assert.False(t, IsRetryable(fmt.Errorf("x: %w", ErrIndexNotFound)))
}

func TestBleveIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := NewBleveBackend("")
	defer backend.Close()
	sm := NewSchemaManager(backend, "hebrew")

	err := sm.DeleteIndex(ctx, testIndex)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	assert.NoError(t, sm.CreateIndex(ctx, testIndex))
	exists, err := backend.IndexExists(ctx, testIndex)
	assert.NoError(t, err)
	assert.True(t, exists)

	err = sm.CreateIndex(ctx, testIndex)
	assert.ErrorIs(t, err, ErrIndexExists)

	created, err := sm.EnsureIndex(ctx, testIndex)
	assert.NoError(t, err)
	assert.False(t, created)

	assert.NoError(t, sm.Recreate(ctx, testIndex))
	assert.NoError(t, sm.DeleteIndex(ctx, testIndex))
	exists, err = backend.IndexExists(ctx, testIndex)
	assert.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, sm.Recreate(ctx, testIndex))
}

func TestBleveOnDisk(t *testing.T) {
	ctx := context.Background()
	backend := NewBleveBackend(t.TempDir())
	sm := NewSchemaManager(backend, "hebrew")
	assert.NoError(t, sm.CreateIndex(ctx, testIndex))
	res, err := backend.Bulk(ctx, testIndex, []BulkItem{
		{ID: "a", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, res.NumIndexed)
	assert.NoError(t, backend.Close())

	items, err := backend.ListIndexes(ctx)
	assert.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, testIndex, items[0].Name)
	assert.Equal(t, 1, items[0].NumDocs)

	assert.NoError(t, sm.DeleteIndex(ctx, testIndex))
	assert.ErrorIs(t, sm.DeleteIndex(ctx, testIndex), ErrIndexNotFound)
	assert.NoError(t, backend.Close())
}

func TestBleveBulkSearchAndClear(t *testing.T) {
	ctx := context.Background()
	backend := NewBleveBackend("")
	defer backend.Close()
	sm := NewSchemaManager(backend, "hebrew")
	require.NoError(t, sm.CreateIndex(ctx, testIndex))

	res, err := backend.Bulk(ctx, testIndex, []BulkItem{
		{ID: "6100001-12-A", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
		{ID: "6100002-14", Doc: testRecord("6100002", "14", "", "Tel Aviv", "Herzl")},
		{ID: "3100001-12", Doc: testRecord("3100001", "12", "", "Haifa", "Hagefen")},
		{Doc: testRecord("8800001", "1", "", "Eilat", "Hatmarim")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, res.NumIndexed)
	assert.False(t, res.HasFailures())

	count, err := backend.Count(ctx, testIndex)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)

	// rewriting the same id keeps the number of documents
	_, err = backend.Bulk(ctx, testIndex, []BulkItem{
		{ID: "6100001-12-A", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
	})
	assert.NoError(t, err)
	count, err = backend.Count(ctx, testIndex)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)

	result, err := backend.Search(ctx, testIndex, LookupQuery{HouseNumber: "12", Address: "Herzl , Tel Aviv", Size: 5})
	assert.NoError(t, err)
	require.Equal(t, 2, result.Hits.Total.Value)
	require.Len(t, result.Hits.Hits, 2)
	top := result.Hits.Hits[0]
	assert.Equal(t, "6100001-12-A", top.ID)
	assert.Equal(t, "6100001", top.Source.ZipCode)
	assert.Equal(t, "Tel Aviv Herzl", top.Source.FullAddress)
	assert.Equal(t, testIndex, top.Index)
	assert.GreaterOrEqual(t, top.Score, result.Hits.Hits[1].Score)

	result, err = backend.Search(ctx, testIndex, LookupQuery{HouseNumber: "99", Address: "Herzl", Size: 5})
	assert.NoError(t, err)
	assert.Len(t, result.Hits.Hits, 0)

	numDeleted, err := backend.ClearIndex(ctx, testIndex)
	assert.NoError(t, err)
	assert.Equal(t, 4, numDeleted)
	count, err = backend.Count(ctx, testIndex)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
	exists, err := backend.IndexExists(ctx, testIndex)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestBleveHouseNumberIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	backend := NewBleveBackend("")
	defer backend.Close()
	sm := NewSchemaManager(backend, "hebrew")
	require.NoError(t, sm.CreateIndex(ctx, testIndex))
	_, err := backend.Bulk(ctx, testIndex, []BulkItem{
		{ID: "6100005-12A", Doc: testRecord("6100005", "12A", "", "Tel Aviv", "Herzl")},
		{ID: "6100006-120", Doc: testRecord("6100006", "120", "", "Tel Aviv", "Herzl")},
	})
	require.NoError(t, err)

	result, err := backend.Search(ctx, testIndex, LookupQuery{HouseNumber: "12a", Address: "Herzl", Size: 5})
	assert.NoError(t, err)
	require.Len(t, result.Hits.Hits, 1)
	assert.Equal(t, "6100005", result.Hits.Hits[0].Source.ZipCode)
}

func TestBleveMissingIndex(t *testing.T) {
	ctx := context.Background()
	backend := NewBleveBackend("")
	_, err := backend.Bulk(ctx, "foo", []BulkItem{{ID: "x"}})
	assert.ErrorIs(t, err, ErrIndexNotFound)
	_, err = backend.Search(ctx, "foo", LookupQuery{HouseNumber: "1", Size: 5})
	assert.ErrorIs(t, err, ErrIndexNotFound)
	_, err = backend.Count(ctx, "foo")
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.NoError(t, backend.Ping(ctx))
}
