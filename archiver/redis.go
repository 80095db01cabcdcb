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
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisAdapter struct {
	conf  *RedisConf
	redis *redis.Client
	ctx   context.Context
}

func (rd *RedisAdapter) String() string {
	if rd.redis == nil {
		return fmt.Sprintf(
			"RedisAdapter (inactive), address %s:%d, db %d",
			rd.conf.Host, rd.conf.Port, rd.conf.DB,
		)
	}
	return fmt.Sprintf(
		"RedisAdapter (active) address %s:%d, db %d",
		rd.conf.Host, rd.conf.Port, rd.conf.DB,
	)
}

func (rd *RedisAdapter) Ping() error {
	if err := rd.redis.Ping(rd.ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (rd *RedisAdapter) Get(k string) (string, error) {
	cmd := rd.redis.Get(rd.ctx, k)
	if cmd.Err() == redis.Nil {
		return "", nil
	}
	if cmd.Err() != nil {
		return "", fmt.Errorf("failed to get Redis entry %s: %w", k, cmd.Err())
	}
	return cmd.Val(), nil
}

func (rd *RedisAdapter) Set(k string, v any) error {
	cmd := rd.redis.Set(rd.ctx, k, v, 0)
	if cmd.Err() != nil {
		return fmt.Errorf("failed to set Redis item %s: %w", k, cmd.Err())
	}
	return nil
}

func (rd *RedisAdapter) Del(k string) error {
	cmd := rd.redis.Del(rd.ctx, k)
	if cmd.Err() != nil {
		return fmt.Errorf("failed to delete Redis item %s: %w", k, cmd.Err())
	}
	return nil
}

func (rd *RedisAdapter) Exists(key string) (bool, error) {
	cmd := rd.redis.Exists(rd.ctx, key)
	if cmd.Err() != nil {
		return false, fmt.Errorf("failed to test key %s: %w", key, cmd.Err())
	}
	return cmd.Val() > 0, nil
}

func (rd *RedisAdapter) QueueLength(queue string) (int, error) {
	cmd := rd.redis.LLen(rd.ctx, queue)
	if cmd.Err() != nil {
		return 0, fmt.Errorf("failed to get length of queue %s: %w", queue, cmd.Err())
	}
	return int(cmd.Val()), nil
}

// PushFailedBatch adds a failed batch to the beginning of a queue.
// Items are consumed from the other side (see NextNFailedBatches).
func (rd *RedisAdapter) PushFailedBatch(queue string, fb FailedBatch) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to queue failed batch %d: %w", fb.BatchNum, err)
	}
	cmd := rd.redis.LPush(rd.ctx, queue, string(data))
	if cmd.Err() != nil {
		return fmt.Errorf("failed to queue failed batch %d: %w", fb.BatchNum, cmd.Err())
	}
	return nil
}

// InvalidItemsQueue returns a key of a list where undecodable
// items of queue are moved.
func InvalidItemsQueue(queue string) string {
	return queue + ":invalid"
}

// decodeQueueItems decodes items as returned by LRANGE (newest
// first). The result is ordered oldest first, items which cannot
// be decoded are returned separately.
func decodeQueueItems(items []string) ([]FailedBatch, []string) {
	ans := make([]FailedBatch, 0, len(items))
	invalid := make([]string, 0)
	for i := len(items) - 1; i >= 0; i-- {
		var v FailedBatch
		if err := json.Unmarshal([]byte(items[i]), &v); err != nil {
			invalid = append(invalid, items[i])
			continue
		}
		ans = append(ans, v)
	}
	return ans, invalid
}

// NextNFailedBatches removes and returns up to n oldest items
// of a queue (oldest first). Items are removed only after they
// are decoded, undecodable ones end up in InvalidItemsQueue(queue).
func (rd *RedisAdapter) NextNFailedBatches(queue string, n int64) ([]FailedBatch, error) {
	items, err := rd.redis.LRange(rd.ctx, queue, -n, -1).Result()
	if err != nil {
		return []FailedBatch{}, fmt.Errorf("failed to get items from queue: %w", err)
	}
	if len(items) == 0 {
		return []FailedBatch{}, nil
	}
	ans, invalid := decodeQueueItems(items)
	tx := rd.redis.TxPipeline()
	for _, raw := range invalid {
		tx.LPush(rd.ctx, InvalidItemsQueue(queue), raw)
	}
	// producers push to the head so the tail still holds what we read
	tx.LTrim(rd.ctx, queue, 0, -int64(len(items))-1)
	if _, err := tx.Exec(rd.ctx); err != nil {
		return []FailedBatch{}, fmt.Errorf("failed to remove items from queue: %w", err)
	}
	for _, raw := range invalid {
		log.Error().
			Str("queue", queue).
			Str("item", raw).
			Msg("failed to decode queue item, moved to invalid items")
	}
	return ans, nil
}

func (rd *RedisAdapter) Close() error {
	return rd.redis.Close()
}

func NewRedisAdapter(ctx context.Context, conf *RedisConf) *RedisAdapter {
	ans := &RedisAdapter{
		conf: conf,
		redis: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
			Password: conf.Password,
			DB:       conf.DB,
		}),
		ctx: ctx,
	}
	return ans
}
