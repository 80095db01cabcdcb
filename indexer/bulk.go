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
	"encoding/json"
	"fmt"
)

type bulkActionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

type bulkAction struct {
	Index bulkActionMeta `json:"index"`
}

// EncodeBulkPayload creates a newline delimited JSON payload for
// a bulk write. Each document line is preceded by its action line.
// The pairing is positional so the order of items is preserved.
func EncodeBulkPayload(index string, items []BulkItem) ([]byte, error) {
	var buff bytes.Buffer
	enc := json.NewEncoder(&buff)
	enc.SetEscapeHTML(false)
	for i, item := range items {
		if err := enc.Encode(bulkAction{Index: bulkActionMeta{Index: index, ID: item.ID}}); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action %d: %w", i, err)
		}
		if err := enc.Encode(item.Doc); err != nil {
			return nil, fmt.Errorf("failed to encode bulk document %d: %w", i, err)
		}
	}
	return buff.Bytes(), nil
}

// ---------------------------

type bulkRespError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type bulkRespItem struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Status int            `json:"status"`
	Error  *bulkRespError `json:"error"`
}

type bulkResponse struct {
	Took   int                       `json:"took"`
	Errors bool                      `json:"errors"`
	Items  []map[string]bulkRespItem `json:"items"`
}

// parseBulkResponse extracts per-item results of a bulk write.
// Items are reported in the same order they were submitted.
func parseBulkResponse(data []byte) (BulkResult, error) {
	var resp bulkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return BulkResult{}, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	var ans BulkResult
	for i, wrapped := range resp.Items {
		for _, item := range wrapped {
			if item.Error != nil || item.Status >= 300 {
				failure := ItemFailure{Position: i, ID: item.ID, Status: item.Status}
				if item.Error != nil {
					failure.Reason = fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason)
				}
				ans.Failures = append(ans.Failures, failure)

			} else {
				ans.NumIndexed++
			}
		}
	}
	return ans, nil
}
