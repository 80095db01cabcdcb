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
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
	"zipfinder/archiver"
	"zipfinder/awsconf"
	"zipfinder/cleaner"
	"zipfinder/indexer"
	"zipfinder/loader"
	"zipfinder/search"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/hltscl"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	dfltServerWriteTimeoutSecs = 30
	dfltServerReadTimeoutSecs  = 30
	dfltListenPort             = 8080
	dfltTimeZone               = "Asia/Jerusalem"
	dfltDotEnvPath             = ".env"
	dfltLogLevel               = "info"
)

// Conf is a global configuration of the app. It is created once
// at the start and it must not be changed afterwards.
type Conf struct {
	srcPath                string
	ListenAddress          string              `json:"listenAddress"`
	ListenPort             int                 `json:"listenPort"`
	ServerReadTimeoutSecs  int                 `json:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs int                 `json:"serverWriteTimeoutSecs"`
	TimeZone               string              `json:"timeZone"`
	LogFile                string              `json:"logFile"`
	LogLevel               logging.LogLevel    `json:"logLevel"`
	SearchBackend          *indexer.Conf       `json:"searchBackend"`
	Loader                 *loader.Conf        `json:"loader"`
	Redis                  *archiver.RedisConf `json:"redis"`
	DeadLetterDB           *archiver.DBConf    `json:"deadLetterDb"`
	DeadLetter             *archiver.Conf      `json:"deadLetter"`

	// Cleaner is optional. If omitted, resolved failed batches
	// stay in the dead letter database forever.
	Cleaner *cleaner.Conf `json:"cleaner"`

	// Reporting is optional. If omitted, run statistics are
	// only written to the log.
	Reporting *hltscl.PgConf `json:"reporting"`

	AWS    *awsconf.Conf `json:"aws"`
	Lookup *search.Conf  `json:"lookup"`
}

func (conf *Conf) TimezoneLocation() *time.Location {
	// we can ignore the error here as we always call c.Validate()
	// first (which also tries to load the location and report possible
	// error)
	loc, _ := time.LoadLocation(conf.TimeZone)
	return loc
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

func newConf() *Conf {
	return &Conf{
		SearchBackend: &indexer.Conf{},
		Loader:        &loader.Conf{},
		DeadLetter:    &archiver.Conf{},
		AWS:           &awsconf.Conf{},
		Lookup:        &search.Conf{},
	}
}

// applyEnv overrides configuration by environment variables
// (possibly loaded from a .env file)
func applyEnv(conf *Conf) error {
	if v := os.Getenv("ES_ENDPOINT"); v != "" {
		if conf.SearchBackend.Type != indexer.BackendOpenSearch {
			conf.SearchBackend.Type = indexer.BackendElastic
		}
		conf.SearchBackend.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("ES_INDEX"); v != "" {
		conf.SearchBackend.IndexName = v
	}
	if v := os.Getenv("ES_USERNAME"); v != "" {
		conf.SearchBackend.Username = v
	}
	if v := os.Getenv("ES_PASSWORD"); v != "" {
		conf.SearchBackend.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		conf.AWS.Region = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		conf.AWS.Profile = v
	}
	if v := os.Getenv("KMS_KEY_ID"); v != "" {
		conf.AWS.KMSKeyID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_ADDR: %w", err)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid REDIS_ADDR port: %w", err)
		}
		if conf.Redis == nil {
			conf.Redis = &archiver.RedisConf{}
		}
		conf.Redis.Host = host
		conf.Redis.Port = portNum
	}
	return nil
}

func loadConfig(path string) (*Conf, error) {
	conf := newConf()
	if path != "" {
		rawData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		if err := json.Unmarshal(rawData, conf); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		conf.srcPath = path
	}
	if err := godotenv.Load(dfltDotEnvPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", dfltDotEnvPath, err)
	}
	if err := applyEnv(conf); err != nil {
		return nil, fmt.Errorf("failed to apply environment configuration: %w", err)
	}
	// logging is set up before ValidateAndDefaults runs
	if conf.LogLevel == "" {
		conf.LogLevel = dfltLogLevel
	}
	return conf, nil
}

// LoadConfig loads configuration from a JSON file (an empty path
// means "defaults only") and applies environment overrides.
func LoadConfig(path string) *Conf {
	conf, err := loadConfig(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return conf
}

func validateAndDefaults(conf *Conf) error {
	if conf.ListenPort == 0 {
		conf.ListenPort = dfltListenPort
		log.Warn().
			Int("value", conf.ListenPort).
			Msg("listenPort not specified, using default")
	}
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().
			Int("value", conf.ServerWriteTimeoutSecs).
			Msg("serverWriteTimeoutSecs not specified, using default")
	}
	if conf.ServerReadTimeoutSecs == 0 {
		conf.ServerReadTimeoutSecs = dfltServerReadTimeoutSecs
		log.Warn().
			Int("value", conf.ServerReadTimeoutSecs).
			Msg("serverReadTimeoutSecs not specified, using default")
	}
	if conf.TimeZone == "" {
		conf.TimeZone = dfltTimeZone
		log.Warn().
			Str("timeZone", conf.TimeZone).
			Msg("time zone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}
	if err := conf.SearchBackend.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid searchBackend configuration: %w", err)
	}
	if err := conf.Loader.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid loader configuration: %w", err)
	}
	if err := conf.Redis.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}
	if err := conf.DeadLetterDB.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid deadLetterDb configuration: %w", err)
	}
	if err := conf.DeadLetter.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid deadLetter configuration: %w", err)
	}
	if conf.Redis.IsConfigured() && !conf.DeadLetterDB.IsConfigured() {
		log.Warn().
			Str("queue", conf.DeadLetter.QueueKey).
			Msg("redis configured without deadLetterDb, failed batches will stay " +
				"in the Redis queue and cannot be archived or replayed until deadLetterDb is set")
	}
	if err := conf.Cleaner.ValidateAndDefaults(conf.DeadLetter.CheckIntervalSecs); err != nil {
		return fmt.Errorf("invalid cleaner configuration: %w", err)
	}
	if err := conf.AWS.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid aws configuration: %w", err)
	}
	if err := conf.Lookup.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid lookup configuration: %w", err)
	}
	return nil
}

func ValidateAndDefaults(conf *Conf) {
	if err := validateAndDefaults(conf); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
}
