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

package archiver

import (
	"fmt"
	"time"
	"zipfinder/util"

	"github.com/rs/zerolog/log"
)

const (
	dfltQueueKey           = "zipfinder:failed_batches"
	dfltErrorQueueKey      = "zipfinder:failed_batches:errors"
	dfltCheckIntervalSecs  = 60
	dfltCheckIntervalChunk = 50
	dfltRedisPort          = 6379
	dfltMySQLPort          = 3306
)

type RedisConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       int    `json:"db"`
	Password string `json:"password"`
}

func (conf *RedisConf) IsConfigured() bool {
	return conf != nil && conf.Host != ""
}

func (conf *RedisConf) ValidateAndDefaults() error {
	if !conf.IsConfigured() {
		return nil
	}
	if conf.Port == 0 {
		conf.Port = dfltRedisPort
		log.Warn().
			Int("value", conf.Port).
			Msg("redis `port` not set, using default")
	}
	return nil
}

// ---------------------

type DBConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	PoolSize int    `json:"poolSize"`
}

func (conf *DBConf) IsConfigured() bool {
	return conf != nil && conf.Host != ""
}

func (conf *DBConf) ValidateAndDefaults() error {
	if !conf.IsConfigured() {
		return nil
	}
	if conf.Name == "" {
		return fmt.Errorf("missing dead letter database name (deadLetterDb.name)")
	}
	if conf.User == "" {
		return fmt.Errorf("missing dead letter database user (deadLetterDb.user)")
	}
	if conf.Port == 0 {
		conf.Port = dfltMySQLPort
		log.Warn().
			Int("value", conf.Port).
			Msg("deadLetterDb `port` not set, using default")
	}
	return nil
}

// ---------------------

type Conf struct {
	QueueKey           string `json:"queueKey"`
	ErrorQueueKey      string `json:"errorQueueKey"`
	CheckIntervalSecs  int    `json:"checkIntervalSecs"`
	CheckIntervalChunk int    `json:"checkIntervalChunk"`
}

func (conf *Conf) CheckInterval() time.Duration {
	return time.Duration(conf.CheckIntervalSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `deadLetter` section")
	}
	if conf.QueueKey == "" {
		conf.QueueKey = dfltQueueKey
		log.Warn().
			Str("value", conf.QueueKey).
			Msg("deadLetter `queueKey` not set, using default")
	}
	if conf.ErrorQueueKey == "" {
		conf.ErrorQueueKey = dfltErrorQueueKey
		log.Warn().
			Str("value", conf.ErrorQueueKey).
			Msg("deadLetter `errorQueueKey` not set, using default")
	}
	if conf.CheckIntervalSecs <= 0 {
		conf.CheckIntervalSecs = dfltCheckIntervalSecs
		log.Warn().
			Int("value", conf.CheckIntervalSecs).
			Msg("deadLetter `checkIntervalSecs` not set, using default")
	}
	tmp, err := util.NearestPrime(conf.CheckIntervalSecs)
	if err != nil {
		return fmt.Errorf("failed to tune ops timing: %w", err)
	}
	if tmp != conf.CheckIntervalSecs {
		log.Warn().
			Int("oldValue", conf.CheckIntervalSecs).
			Int("newValue", tmp).
			Msg("tuned value of checkIntervalSecs so it cannot be easily overlapped by other timers")
		conf.CheckIntervalSecs = tmp
	}
	if conf.CheckIntervalChunk <= 0 {
		conf.CheckIntervalChunk = dfltCheckIntervalChunk
		log.Warn().
			Int("value", conf.CheckIntervalChunk).
			Msg("deadLetter `checkIntervalChunk` not set, using default")
	}
	return nil
}
