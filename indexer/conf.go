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
	"fmt"
	"time"
	"zipfinder/awsconf"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

type BackendType string

const (
	BackendElastic    BackendType = "elasticsearch"
	BackendOpenSearch BackendType = "opensearch"
	BackendBleve      BackendType = "bleve"

	dfltIndexName          = "address-to-zip"
	dfltTextAnalyzer       = "hebrew"
	dfltRequestTimeoutSecs = 30
	dfltSigV4Service       = "es"
)

// Conf contains search backend configuration as obtained
// from a JSON file (or chunk). Please note that the
// instance should be treated as ready only after
// ValidateAndDefaults is called.
type Conf struct {
	Type BackendType `json:"type"`

	// Addresses is a list of Elasticsearch/OpenSearch nodes
	// (e.g. http://localhost:9200)
	Addresses []string `json:"addresses"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`

	// SigV4 enables AWS request signing for the opensearch
	// backend (Amazon OpenSearch Service)
	SigV4 *awsconf.Conf `json:"sigV4"`

	// SigV4Service is "es" for managed domains and "aoss"
	// for OpenSearch Serverless
	SigV4Service string `json:"sigV4Service"`

	// IndexDirPath specifies a directory where Bleve stores
	// its indexes. An empty value means in-memory indexes
	// (useful only for testing).
	IndexDirPath string `json:"indexDirPath"`

	IndexName string `json:"indexName"`

	// TextAnalyzer is applied to all free-text fields
	TextAnalyzer string `json:"textAnalyzer"`

	RequestTimeoutSecs int `json:"requestTimeoutSecs"`
}

func (conf *Conf) RequestTimeout() time.Duration {
	return time.Duration(conf.RequestTimeoutSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `searchBackend` section")
	}
	if conf.Type == "" {
		conf.Type = BackendElastic
		log.Warn().
			Str("value", string(conf.Type)).
			Msg("searchBackend `type` not set, using default")
	}
	switch conf.Type {
	case BackendElastic:
		if len(conf.Addresses) == 0 {
			return fmt.Errorf("missing Elasticsearch node addresses (addresses)")
		}
	case BackendOpenSearch:
		if len(conf.Addresses) == 0 {
			return fmt.Errorf("missing OpenSearch node addresses (addresses)")
		}
		if _, err := parseNodeURLs(conf.Addresses); err != nil {
			return fmt.Errorf("failed to validate addresses: %w", err)
		}
		if conf.SigV4 != nil {
			if err := conf.SigV4.ValidateAndDefaults(); err != nil {
				return fmt.Errorf("failed to validate sigV4: %w", err)
			}
			if conf.SigV4Service == "" {
				conf.SigV4Service = dfltSigV4Service
				log.Warn().
					Str("value", conf.SigV4Service).
					Msg("searchBackend `sigV4Service` not set, using default")
			}
		}
	case BackendBleve:
		if conf.IndexDirPath != "" {
			isDir, err := fs.IsDir(conf.IndexDirPath)
			if err != nil {
				return fmt.Errorf("failed to validate indexDirPath: %w", err)
			}
			if !isDir {
				return fmt.Errorf("index dir does not exist (indexDirPath)")
			}

		} else {
			log.Warn().Msg("bleve indexDirPath not set, indexes will be kept in memory")
		}
	default:
		return fmt.Errorf("unknown searchBackend type `%s`", conf.Type)
	}
	if conf.IndexName == "" {
		conf.IndexName = dfltIndexName
		log.Warn().
			Str("value", conf.IndexName).
			Msg("searchBackend `indexName` not set, using default")
	}
	if conf.TextAnalyzer == "" {
		conf.TextAnalyzer = dfltTextAnalyzer
		log.Warn().
			Str("value", conf.TextAnalyzer).
			Msg("searchBackend `textAnalyzer` not set, using default")
	}
	if conf.RequestTimeoutSecs <= 0 {
		conf.RequestTimeoutSecs = dfltRequestTimeoutSecs
		log.Warn().
			Int("value", conf.RequestTimeoutSecs).
			Msg("searchBackend `requestTimeoutSecs` not set, using default")
	}
	return nil
}
