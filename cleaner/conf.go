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

package cleaner

import (
	"fmt"
	"time"
	"zipfinder/util"

	"github.com/rs/zerolog/log"
)

const (
	dfltStatusKey              = "zipfinder:cleanup_status"
	dfltCheckIntervalSecs      = 3600
	dfltNumProcessItemsPerTick = 500
	dfltMinAgeDaysResolved     = 30
	minAllowedCheckInterval    = 10
	maxNumProcessItemsPerTick  = 5000
	dfltNightItemsIncrease     = 2
)

// Conf configures removal of resolved failed batches
// from the dead letter archive.
type Conf struct {
	CheckIntervalSecs           int    `json:"checkIntervalSecs"`
	NumProcessItemsPerTick      int    `json:"numProcessItemsPerTick"`
	NumProcessItemsPerTickNight int    `json:"numProcessItemsPerTickNight"`
	StatusKey                   string `json:"statusKey"`
	MinAgeDaysResolved          int    `json:"minAgeDaysResolved"`
}

func (conf *Conf) CheckInterval() time.Duration {
	return time.Duration(conf.CheckIntervalSecs) * time.Second
}

func (conf *Conf) MinAgeResolved() time.Duration {
	return time.Duration(conf.MinAgeDaysResolved) * time.Hour * 24
}

// ValidateAndDefaults validates the configuration. The cleaner is optional
// so a nil configuration is fine. The opsCheckIntervalSecs argument
// is the interval of the dead letter keeper which the cleaner should
// not share.
func (conf *Conf) ValidateAndDefaults(opsCheckIntervalSecs int) error {
	if conf == nil {
		return nil
	}
	if conf.CheckIntervalSecs == 0 {
		conf.CheckIntervalSecs = dfltCheckIntervalSecs
		log.Warn().
			Int("value", conf.CheckIntervalSecs).
			Msg("cleaner `checkIntervalSecs` not set, using default")
	}
	if conf.CheckIntervalSecs < minAllowedCheckInterval {
		return fmt.Errorf(
			"invalid value %d for checkIntervalSecs (must be >= %d)",
			conf.CheckIntervalSecs, minAllowedCheckInterval,
		)
	}
	tmp, err := util.NearestPrime(conf.CheckIntervalSecs)
	if err != nil {
		return fmt.Errorf("failed to tune cleaner timing: %w", err)
	}
	if tmp == opsCheckIntervalSecs {
		tmp, err = util.NearestPrime(tmp + 1)
		if err != nil {
			return fmt.Errorf("failed to tune cleaner timing: %w", err)
		}
	}
	if tmp != conf.CheckIntervalSecs {
		log.Warn().
			Int("oldValue", conf.CheckIntervalSecs).
			Int("newValue", tmp).
			Msg("tuned value of checkIntervalSecs so it does not overlap with dead letter keeper interval")
		conf.CheckIntervalSecs = tmp
	}
	if conf.NumProcessItemsPerTick == 0 {
		conf.NumProcessItemsPerTick = dfltNumProcessItemsPerTick
		log.Warn().
			Int("value", conf.NumProcessItemsPerTick).
			Msg("cleaner `numProcessItemsPerTick` not set, using default")
	}
	if conf.NumProcessItemsPerTick < 1 || conf.NumProcessItemsPerTick > maxNumProcessItemsPerTick {
		return fmt.Errorf(
			"invalid value for numProcessItemsPerTick (must be between 1 and %d)", maxNumProcessItemsPerTick)
	}
	if conf.NumProcessItemsPerTickNight == 0 {
		conf.NumProcessItemsPerTickNight = conf.NumProcessItemsPerTick * dfltNightItemsIncrease
		log.Warn().
			Int("value", conf.NumProcessItemsPerTickNight).
			Msg("cleaner `numProcessItemsPerTickNight` not set - using calculated default")
	}
	if conf.StatusKey == "" {
		conf.StatusKey = dfltStatusKey
		log.Warn().Str("value", conf.StatusKey).Msg("cleaner `statusKey` not set, using default")
	}
	if conf.MinAgeDaysResolved == 0 {
		conf.MinAgeDaysResolved = dfltMinAgeDaysResolved
		log.Warn().
			Int("value", conf.MinAgeDaysResolved).
			Msg("cleaner `minAgeDaysResolved` not set, using default")
	}
	if conf.MinAgeDaysResolved < 0 {
		return fmt.Errorf("cleaner `minAgeDaysResolved` must not be negative")
	}
	return nil
}
