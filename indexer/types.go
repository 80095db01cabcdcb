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
	"io"
	"net"
	"net/http"
	"syscall"
	"zipfinder/address"
)

var (
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexExists   = errors.New("index already exists")
)

// StoreError represents an error response returned by a search backend.
type StoreError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (err *StoreError) Error() string {
	if err.Type == "" {
		return fmt.Sprintf("store responded with status %d: %s", err.StatusCode, err.Reason)
	}
	return fmt.Sprintf("store responded with status %d (%s): %s", err.StatusCode, err.Type, err.Reason)
}

// IsRetryable tells whether an operation failed with an error
// which may disappear when the operation is repeated. Only transport
// problems and responses of an overloaded or unavailable store (429, 5xx)
// qualify. Anything else (including unrecognized errors) is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.StatusCode == http.StatusTooManyRequests ||
			storeErr.StatusCode >= http.StatusInternalServerError
	}
	return isTransportError(err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// ----------------------------

// BulkItem is a single document to be written. An empty ID
// means the store will assign one.
type BulkItem struct {
	ID  string         `json:"id,omitempty"`
	Doc address.Record `json:"doc"`
}

type ItemFailure struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	Status   int    `json:"status"`
	Reason   string `json:"reason"`
}

type BulkResult struct {
	NumIndexed int           `json:"numIndexed"`
	Failures   []ItemFailure `json:"failures"`
}

func (res BulkResult) HasFailures() bool {
	return len(res.Failures) > 0
}

// ----------------------------

// LookupQuery searches for addresses with a specific house number
// whose street/city resemble Address.
type LookupQuery struct {
	HouseNumber string
	Address     string
	Size        int
}

type Hit struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Source address.Record `json:"_source"`
}

type HitsTotal struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

type Hits struct {
	Total    HitsTotal `json:"total"`
	MaxScore float64   `json:"max_score"`
	Hits     []Hit     `json:"hits"`
}

// SearchResult follows the structure of Elasticsearch search
// response so clients can process results regardless of the
// backend used.
type SearchResult struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Hits     Hits `json:"hits"`
}

type IndexInfo struct {
	Name    string `json:"name"`
	NumDocs int    `json:"numDocs"`
	Health  string `json:"health,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ----------------------------

// Backend is a document store holding address indexes.
type Backend interface {

	// CreateIndex creates a new index. If the index already
	// exists, ErrIndexExists is returned.
	CreateIndex(ctx context.Context, name string, mapping Mapping) error

	// DeleteIndex removes an index. If the index does not
	// exist, ErrIndexNotFound is returned.
	DeleteIndex(ctx context.Context, name string) error

	IndexExists(ctx context.Context, name string) (bool, error)

	// ClearIndex removes all the documents but keeps the index
	// and its mapping. The number of deleted documents is returned.
	ClearIndex(ctx context.Context, name string) (int, error)

	ListIndexes(ctx context.Context) ([]IndexInfo, error)

	Bulk(ctx context.Context, name string, items []BulkItem) (BulkResult, error)

	Search(ctx context.Context, name string, query LookupQuery) (*SearchResult, error)

	Count(ctx context.Context, name string) (int, error)

	Ping(ctx context.Context) error

	Close() error
}
