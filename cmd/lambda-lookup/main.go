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

package main

import (
	"os"
	"zipfinder/cnf"
	"zipfinder/indexer"
	"zipfinder/search"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

// The function is configured via environment variables
// (ES_ENDPOINT, ES_INDEX, ...) and optionally a JSON config
// file referred by ZIPFINDER_CONFIG.
func main() {
	conf := cnf.LoadConfig(os.Getenv("ZIPFINDER_CONFIG"))
	logging.SetupLogging(conf.LogFile, conf.LogLevel)
	cnf.ValidateAndDefaults(conf)

	backend, err := indexer.NewBackend(conf.SearchBackend)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize search backend")
	}
	service := search.NewService(backend, conf.SearchBackend.IndexName, conf.Lookup)
	lambda.Start(search.NewLambdaHandler(service).Handle)
}
