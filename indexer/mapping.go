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
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/datetime/flexible"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	// DateFormat is the date format declared for all date fields.
	// It corresponds to address.DateTimeLayout and both must be kept
	// in sync (otherwise the store rejects documents).
	DateFormat = "yyyy-MM-dd HH:mm:ss"

	docTypeAddress      = "address"
	bleveDateTimeParser = "zipfinderDateTime"
	houseNumberAnalyzer = "standard"
)

type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldText    FieldType = "text"
	FieldDate    FieldType = "date"
)

type FieldMapping struct {
	Name     string
	Type     FieldType
	Analyzer string
	Format   string
}

// Mapping is a static declaration of indexed fields.
type Mapping struct {
	Fields []FieldMapping
}

// Field returns a field mapping by its name
func (m Mapping) Field(name string) (FieldMapping, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// ESBody renders the mapping as an Elasticsearch/OpenSearch
// create-index request body.
func (m Mapping) ESBody() map[string]any {
	props := make(map[string]any)
	for _, f := range m.Fields {
		fm := map[string]any{"type": string(f.Type)}
		if f.Type == FieldText && f.Analyzer != "" {
			fm["analyzer"] = f.Analyzer
		}
		if f.Type == FieldDate && f.Format != "" {
			fm["format"] = f.Format
		}
		props[f.Name] = fm
	}
	return map[string]any{
		"mappings": map[string]any{
			"properties": props,
		},
	}
}

// javaDateToGoLayout converts the (limited) subset of Java date
// patterns we use into a Go time layout.
func javaDateToGoLayout(format string) string {
	return strings.NewReplacer(
		"yyyy", "2006",
		"MM", "01",
		"dd", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	).Replace(format)
}

func bleveAnalyzer(name string) string {
	switch name {
	case keyword.Name:
		return keyword.Name
	case simple.Name:
		return simple.Name
	default:
		// no bleve analyzer for most of the languages supported
		// by Elasticsearch plug-ins
		return standard.Name
	}
}

// BleveMapping renders the mapping for a bleve index.
func (m Mapping) BleveMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	for _, f := range m.Fields {
		switch f.Type {
		case FieldKeyword:
			fm := bleve.NewKeywordFieldMapping()
			docMapping.AddFieldMappingsAt(f.Name, fm)
		case FieldText:
			fm := bleve.NewTextFieldMapping()
			fm.Analyzer = bleveAnalyzer(f.Analyzer)
			docMapping.AddFieldMappingsAt(f.Name, fm)
		case FieldDate:
			layout := javaDateToGoLayout(f.Format)
			parserName := bleveDateTimeParser + "_" + f.Name
			err := indexMapping.AddCustomDateTimeParser(
				parserName,
				map[string]any{
					"type":    flexible.Name,
					"layouts": []any{layout},
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create mapping for %s: %w", f.Name, err)
			}
			fm := bleve.NewDateTimeFieldMapping()
			fm.DateFormat = parserName
			docMapping.AddFieldMappingsAt(f.Name, fm)
		default:
			return nil, fmt.Errorf("unsupported field type %s", f.Type)
		}
	}
	indexMapping.AddDocumentMapping(docTypeAddress, docMapping)
	indexMapping.DefaultType = docTypeAddress
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping, nil
}

// AddressMapping declares the address index. Identifiers are stored
// as keywords (not numbers) so there is no risk of integer overflow
// and leading zeros are preserved. House numbers are analyzed text
// (standard analyzer) so "12A" and "12a" match each other.
func AddressMapping(textAnalyzer string) Mapping {
	return Mapping{
		Fields: []FieldMapping{
			{Name: "city_id", Type: FieldKeyword},
			{Name: "city_name", Type: FieldText, Analyzer: textAnalyzer},
			{Name: "street_id", Type: FieldKeyword},
			{Name: "street_name", Type: FieldText, Analyzer: textAnalyzer},
			{Name: "house_number", Type: FieldText, Analyzer: houseNumberAnalyzer},
			{Name: "entrance", Type: FieldText, Analyzer: textAnalyzer},
			{Name: "zip_code", Type: FieldKeyword},
			{Name: "remark", Type: FieldText, Analyzer: textAnalyzer},
			{Name: "updated", Type: FieldDate, Format: DateFormat},
			{Name: "timestamp", Type: FieldDate, Format: DateFormat},
			{Name: "full_address", Type: FieldText, Analyzer: textAnalyzer},
		},
	}
}
