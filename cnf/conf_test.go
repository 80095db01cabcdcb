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

package cnf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"zipfinder/address"
	"zipfinder/indexer"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ES_ENDPOINT", "ES_INDEX", "ES_USERNAME", "ES_PASSWORD",
		"AWS_REGION", "AWS_PROFILE", "KMS_KEY_ID", "REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func writeConf(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConf(t, `{
		"searchBackend": {"type": "bleve"},
		"loader": {"windowSize": 500}
	}`)
	conf, err := loadConfig(path)
	require.NoError(t, err)
	require.NoError(t, validateAndDefaults(conf))
	assert.Equal(t, path, conf.SrcPath())
	assert.Equal(t, 8080, conf.ListenPort)
	assert.Equal(t, "Asia/Jerusalem", conf.TimezoneLocation().String())
	assert.Equal(t, indexer.BackendBleve, conf.SearchBackend.Type)
	assert.Equal(t, "address-to-zip", conf.SearchBackend.IndexName)
	assert.Equal(t, 500, conf.Loader.WindowSize)
	assert.Equal(t, address.IDStrategyNatural, conf.Loader.IDStrategy)
	assert.Equal(t, 5, conf.Lookup.MaxResults)
	assert.Equal(t, "eu-central-1", conf.AWS.Region)
	assert.Nil(t, conf.Redis)
	assert.Nil(t, conf.Reporting)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ES_ENDPOINT", "http://es1:9200,http://es2:9200")
	t.Setenv("ES_INDEX", "zips-2024")
	t.Setenv("KMS_KEY_ID", "alias/zipfinder")
	t.Setenv("REDIS_ADDR", "redis:6380")
	conf, err := loadConfig("")
	require.NoError(t, err)
	require.NoError(t, validateAndDefaults(conf))
	assert.Equal(t, indexer.BackendElastic, conf.SearchBackend.Type)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, conf.SearchBackend.Addresses)
	assert.Equal(t, "zips-2024", conf.SearchBackend.IndexName)
	assert.Equal(t, "alias/zipfinder", conf.AWS.KMSKeyID)
	require.NotNil(t, conf.Redis)
	assert.Equal(t, "redis", conf.Redis.Host)
	assert.Equal(t, 6380, conf.Redis.Port)
}

func TestLoadConfigEnvOnlyDefaultsLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("ES_ENDPOINT", "http://es1:9200")
	conf, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevel("info"), conf.LogLevel)
	assert.Equal(t, "", conf.LogFile)
}

func TestLoadConfigKeepsExplicitLogLevel(t *testing.T) {
	clearEnv(t)
	conf, err := loadConfig(writeConf(t, `{"logLevel": "debug", "searchBackend": {"type": "bleve"}}`))
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevel("debug"), conf.LogLevel)
}

func TestEndpointEnvKeepsOpenSearchType(t *testing.T) {
	clearEnv(t)
	t.Setenv("ES_ENDPOINT", "https://search-zips.il-central-1.es.amazonaws.com")
	conf, err := loadConfig(writeConf(t, `{"searchBackend": {"type": "opensearch", "sigV4": {}}}`))
	require.NoError(t, err)
	require.NoError(t, validateAndDefaults(conf))
	assert.Equal(t, indexer.BackendOpenSearch, conf.SearchBackend.Type)
	assert.Equal(t, "es", conf.SearchBackend.SigV4Service)
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func TestRedisWithoutDeadLetterDBWarns(t *testing.T) {
	clearEnv(t)
	conf, err := loadConfig(writeConf(t, `{
		"searchBackend": {"type": "bleve"},
		"redis": {"host": "localhost"}
	}`))
	require.NoError(t, err)
	logBuf := captureLog(t)
	require.NoError(t, validateAndDefaults(conf))
	assert.Contains(t, logBuf.String(), "redis configured without deadLetterDb")

	conf, err = loadConfig(writeConf(t, `{
		"searchBackend": {"type": "bleve"},
		"redis": {"host": "localhost"},
		"deadLetterDb": {"host": "localhost", "user": "zips", "name": "zips"}
	}`))
	require.NoError(t, err)
	logBuf.Reset()
	require.NoError(t, validateAndDefaults(conf))
	assert.NotContains(t, logBuf.String(), "redis configured without deadLetterDb")
}

func TestValidationErrors(t *testing.T) {
	clearEnv(t)
	conf, err := loadConfig(writeConf(t, `{"searchBackend": {"type": "elasticsearch"}}`))
	require.NoError(t, err)
	assert.Error(t, validateAndDefaults(conf))

	conf, err = loadConfig(writeConf(t, `{"searchBackend": {"type": "bleve"}, "timeZone": "Mars/Olympus"}`))
	require.NoError(t, err)
	assert.Error(t, validateAndDefaults(conf))

	_, err = loadConfig(writeConf(t, `{"searchBackend": `))
	assert.Error(t, err)

	t.Setenv("REDIS_ADDR", "redis-without-port")
	_, err = loadConfig("")
	assert.Error(t, err)
}
