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
	"fmt"
	"zipfinder/indexer"

	"github.com/rs/zerolog/log"
)

const (
	dfltMaxResults      = 5
	dfltCORSAllowOrigin = "*"
)

type Conf struct {
	MaxResults      int    `json:"maxResults"`
	CORSAllowOrigin string `json:"corsAllowOrigin"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `lookup` section")
	}
	if conf.MaxResults <= 0 {
		conf.MaxResults = dfltMaxResults
		log.Warn().
			Int("value", conf.MaxResults).
			Msg("lookup `maxResults` not set, using default")
	}
	if conf.CORSAllowOrigin == "" {
		conf.CORSAllowOrigin = dfltCORSAllowOrigin
		log.Warn().
			Str("value", conf.CORSAllowOrigin).
			Msg("lookup `corsAllowOrigin` not set, using default")
	}
	return nil
}

// Service performs address lookups in an address index
type Service struct {
	backend   indexer.Backend
	indexName string
	conf      *Conf
}

// Lookup searches for addresses matching a free-text address
// (e.g. "Herzl 12, Tel Aviv").
func (service *Service) Lookup(ctx context.Context, text string) (*indexer.SearchResult, error) {
	houseNum, addr, err := ParseAddress(text)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("houseNumber", houseNum).
		Str("address", addr).
		Msg("performing address lookup")
	ans, err := service.backend.Search(
		ctx,
		service.indexName,
		indexer.LookupQuery{
			HouseNumber: houseNum,
			Address:     addr,
			Size:        service.conf.MaxResults,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup address: %w", err)
	}
	return ans, nil
}

func (service *Service) CORSAllowOrigin() string {
	return service.conf.CORSAllowOrigin
}

func NewService(backend indexer.Backend, indexName string, conf *Conf) *Service {
	return &Service{
		backend:   backend,
		indexName: indexName,
		conf:      conf,
	}
}
