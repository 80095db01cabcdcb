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

package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"zipfinder/address"
	"zipfinder/indexer"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "address-to-zip"

func TestParseAddress(t *testing.T) {
	num, addr, err := ParseAddress("Herzl 12, Tel Aviv")
	assert.NoError(t, err)
	assert.Equal(t, "12", num)
	assert.Equal(t, "Herzl , Tel Aviv", addr)

	num, addr, err = ParseAddress("12 Herzl")
	assert.NoError(t, err)
	assert.Equal(t, "12", num)
	assert.Equal(t, "Herzl", addr)

	num, addr, err = ParseAddress("Herzl 12A, Tel Aviv")
	assert.NoError(t, err)
	assert.Equal(t, "12", num)
	assert.Equal(t, "Herzl 12A, Tel Aviv", addr)

	_, _, err = ParseAddress("Herzl, Tel Aviv")
	assert.ErrorIs(t, err, ErrNoHouseNumber)
}

func TestParseLookupRequest(t *testing.T) {
	text, err := ParseLookupRequest([]byte(`{"zip_code": "Herzl 12, Tel Aviv"}`))
	assert.NoError(t, err)
	assert.Equal(t, "Herzl 12, Tel Aviv", text)

	text, err = ParseLookupRequest([]byte(`"Herzl 12, Tel Aviv"`))
	assert.NoError(t, err)
	assert.Equal(t, "Herzl 12, Tel Aviv", text)

	text, err = ParseLookupRequest([]byte("  Herzl 12, Tel Aviv \n"))
	assert.NoError(t, err)
	assert.Equal(t, "Herzl 12, Tel Aviv", text)

	_, err = ParseLookupRequest([]byte(`{"address": "Herzl 12"}`))
	assert.ErrorIs(t, err, ErrMalformedRequest)
	_, err = ParseLookupRequest([]byte(`{"zip_code": `))
	assert.ErrorIs(t, err, ErrMalformedRequest)
	_, err = ParseLookupRequest([]byte(``))
	assert.ErrorIs(t, err, ErrEmptyRequest)
	_, err = ParseLookupRequest([]byte(`{"zip_code": "  "}`))
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func record(zip, house, city, street string) address.Record {
	return address.Record{
		CityID:      "1001",
		CityName:    city,
		StreetID:    "20001",
		StreetName:  street,
		HouseNumber: house,
		ZipCode:     zip,
		Updated:     "2023-01-01 00:00:00",
		Timestamp:   "2024-01-01 00:00:00",
		FullAddress: city + " " + street,
	}
}

func prepareService(t *testing.T) *Service {
	ctx := context.Background()
	backend := indexer.NewBleveBackend("")
	t.Cleanup(func() { backend.Close() })
	sm := indexer.NewSchemaManager(backend, "hebrew")
	require.NoError(t, sm.CreateIndex(ctx, testIndex))
	items := make([]indexer.BulkItem, 0, 10)
	for _, rec := range []address.Record{
		record("6100001", "12", "Tel Aviv", "Herzl"),
		record("6100002", "14", "Tel Aviv", "Herzl"),
		record("3100001", "12", "Haifa", "Hagefen"),
	} {
		items = append(items, indexer.BulkItem{ID: rec.DocID(address.IDStrategyNatural), Doc: rec})
	}
	_, err := backend.Bulk(ctx, testIndex, items)
	require.NoError(t, err)
	conf := &Conf{}
	require.NoError(t, conf.ValidateAndDefaults())
	return NewService(backend, testIndex, conf)
}

func TestHandleLookupOK(t *testing.T) {
	service := prepareService(t)
	resp := HandleLookup(context.Background(), service, []byte(`{"zip_code": "Herzl 12, Tel Aviv"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	var result indexer.SearchResult
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &result))
	assert.LessOrEqual(t, len(result.Hits.Hits), 5)
	require.NotEmpty(t, result.Hits.Hits)
	assert.Equal(t, "6100001", result.Hits.Hits[0].Source.ZipCode)
}

func TestHandleLookupNoHouseNumber(t *testing.T) {
	service := prepareService(t)
	resp := HandleLookup(context.Background(), service, []byte(`{"zip_code": "Herzl, Tel Aviv"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Contains(t, body["error"], "no house number")
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandleLookupStoreFailure(t *testing.T) {
	conf := &Conf{}
	require.NoError(t, conf.ValidateAndDefaults())
	service := NewService(indexer.NewBleveBackend(""), "missing-index", conf)
	resp := HandleLookup(context.Background(), service, []byte(`{"zip_code": "Herzl 12, Tel Aviv"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, `"error"`)
}

func TestLambdaHandler(t *testing.T) {
	service := prepareService(t)
	handler := NewLambdaHandler(service)

	resp, err := handler.Handle(context.Background(), json.RawMessage(`{"zip_code": "Herzl 12, Tel Aviv"}`))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = handler.Handle(
		context.Background(),
		json.RawMessage(`{"httpMethod": "POST", "body": "{\"zip_code\": \"Herzl, Tel Aviv\"}"}`),
	)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = handler.Handle(context.Background(), json.RawMessage(`{"httpMethod": "OPTIONS"}`))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OPTIONS,POST,GET", resp.Headers["Access-Control-Allow-Methods"])
}

func TestGinActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := prepareService(t)
	actions := NewActions(service)
	engine := gin.New()
	engine.POST("/zip-api", actions.Lookup)
	engine.GET("/zip-api", actions.LookupByQuery)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/zip-api", strings.NewReader(`{"zip_code": "Herzl 12, Tel Aviv"}`))
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Body.String(), "6100001")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/zip-api?q=Herzl", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
