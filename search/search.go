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
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNoHouseNumber    = errors.New("no house number found in the address")
	ErrEmptyRequest     = errors.New("empty lookup request")
	ErrMalformedRequest = errors.New("malformed lookup request")

	houseNumberRegexp = regexp.MustCompile(`\d+`)
)

// IsClientError tells whether the error was caused by an invalid
// lookup request (as opposed to a search backend failure).
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoHouseNumber) ||
		errors.Is(err, ErrEmptyRequest) ||
		errors.Is(err, ErrMalformedRequest)
}

// ParseAddress splits a free-text address (e.g. "Herzl 12, Tel Aviv")
// into a house number (the first number found) and the rest
// of the address with the number removed.
func ParseAddress(text string) (string, string, error) {
	houseNum := houseNumberRegexp.FindString(text)
	if houseNum == "" {
		return "", "", fmt.Errorf("failed to parse `%s`: %w", text, ErrNoHouseNumber)
	}
	rmNum := regexp.MustCompile(`\s*\b` + regexp.QuoteMeta(houseNum) + `\b\s*`)
	addr := strings.TrimSpace(rmNum.ReplaceAllString(text, " "))
	return houseNum, addr, nil
}

type lookupRequest struct {
	ZipCode *string `json:"zip_code"`
}

// ParseLookupRequest extracts the searched address from a request
// payload. Supported forms are a JSON object with the `zip_code`
// field, a JSON string and a plain text.
func ParseLookupRequest(payload []byte) (string, error) {
	data := strings.TrimSpace(string(payload))
	if data == "" {
		return "", ErrEmptyRequest
	}
	switch data[0] {
	case '{':
		var req lookupRequest
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			return "", fmt.Errorf("%w: %s", ErrMalformedRequest, err)
		}
		if req.ZipCode == nil {
			return "", fmt.Errorf("%w: missing `zip_code`", ErrMalformedRequest)
		}
		if strings.TrimSpace(*req.ZipCode) == "" {
			return "", ErrEmptyRequest
		}
		return *req.ZipCode, nil
	case '"':
		var text string
		if err := json.Unmarshal([]byte(data), &text); err != nil {
			return "", fmt.Errorf("%w: %s", ErrMalformedRequest, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyRequest
		}
		return text, nil
	}
	return data, nil
}
