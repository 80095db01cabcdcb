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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	// MaxLoadedFailedBatches limits a single LoadPendingFailedBatches call
	MaxLoadedFailedBatches = 1000
)

/*
Expected table (created by InitSchema if missing):

CREATE TABLE zipfinder_failed_batches (
  id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
  run_id VARCHAR(36) NOT NULL,
  index_name VARCHAR(255) NOT NULL,
  batch_num INT NOT NULL,
  min_row INT NOT NULL,
  max_row INT NOT NULL,
  num_docs INT NOT NULL,
  reason TEXT,
  items LONGTEXT NOT NULL,
  num_attempts INT NOT NULL DEFAULT 0,
  status VARCHAR(20) NOT NULL DEFAULT 'pending',
  created DATETIME NOT NULL,
  last_update DATETIME NOT NULL,
  KEY status_index_idx (status, index_name)
);
*/

func DBOpen(conf *DBConf) (*sql.DB, error) {
	mconf := mysql.NewConfig()
	mconf.Net = "tcp"
	mconf.Addr = fmt.Sprintf("%s:%d", conf.Host, conf.Port)
	mconf.User = conf.User
	mconf.Passwd = conf.Password
	mconf.DBName = conf.Name
	mconf.ParseTime = true
	mconf.Loc = time.Local
	mconf.Params = map[string]string{"autocommit": "true"}
	db, err := sql.Open("mysql", mconf.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sql database: %w", err)
	}
	if conf.PoolSize > 0 {
		db.SetMaxOpenConns(conf.PoolSize)
	}
	return db, nil
}

type MySQLOps struct {
	db *sql.DB
	tz *time.Location
}

func (ops *MySQLOps) InitSchema() error {
	_, err := ops.db.Exec(
		"CREATE TABLE IF NOT EXISTS zipfinder_failed_batches (" +
			"id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
			"run_id VARCHAR(36) NOT NULL, " +
			"index_name VARCHAR(255) NOT NULL, " +
			"batch_num INT NOT NULL, " +
			"min_row INT NOT NULL, " +
			"max_row INT NOT NULL, " +
			"num_docs INT NOT NULL, " +
			"reason TEXT, " +
			"items LONGTEXT NOT NULL, " +
			"num_attempts INT NOT NULL DEFAULT 0, " +
			"status VARCHAR(20) NOT NULL DEFAULT 'pending', " +
			"created DATETIME NOT NULL, " +
			"last_update DATETIME NOT NULL, " +
			"KEY status_index_idx (status, index_name))",
	)
	if err != nil {
		return fmt.Errorf("failed to initialize dead letter schema: %w", err)
	}
	return nil
}

func (ops *MySQLOps) InsertFailedBatch(fb FailedBatch) (int64, error) {
	items, err := json.Marshal(fb.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to insert failed batch: %w", err)
	}
	if fb.Status == "" {
		fb.Status = StatusPending
	}
	if fb.Created.IsZero() {
		fb.Created = time.Now().In(ops.tz)
	}
	res, err := ops.db.Exec(
		"INSERT INTO zipfinder_failed_batches "+
			"(run_id, index_name, batch_num, min_row, max_row, num_docs, reason, items, "+
			"num_attempts, status, created, last_update) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		fb.RunID, fb.Index, fb.BatchNum, fb.MinRow, fb.MaxRow, fb.NumDocs, fb.Reason, string(items),
		fb.NumAttempts, fb.Status, fb.Created, time.Now().In(ops.tz),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert failed batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to insert failed batch: %w", err)
	}
	return id, nil
}

// ValidateBatchLimit tests whether limit is a valid number
// of failed batches to load at once.
func ValidateBatchLimit(limit int) error {
	if limit < 1 || limit > MaxLoadedFailedBatches {
		return fmt.Errorf("limit must be between 1 and %d, got %d", MaxLoadedFailedBatches, limit)
	}
	return nil
}

// LoadPendingFailedBatches loads unresolved batches of an index
// (oldest first). An empty index means any index.
func (ops *MySQLOps) LoadPendingFailedBatches(index string, limit int) ([]FailedBatch, error) {
	if err := ValidateBatchLimit(limit); err != nil {
		return []FailedBatch{}, fmt.Errorf("failed to load pending batches: %w", err)
	}
	rows, err := ops.db.Query(
		"SELECT id, run_id, index_name, batch_num, min_row, max_row, num_docs, reason, items, "+
			"num_attempts, status, created "+
			"FROM zipfinder_failed_batches "+
			"WHERE status = ? AND (? = '' OR index_name = ?) "+
			"ORDER BY id LIMIT ?",
		StatusPending, index, index, limit,
	)
	if err != nil {
		return []FailedBatch{}, fmt.Errorf("failed to load pending batches: %w", err)
	}
	defer rows.Close()
	ans := make([]FailedBatch, 0, limit)
	for rows.Next() {
		var item FailedBatch
		var items string
		var reason sql.NullString
		err := rows.Scan(
			&item.ID, &item.RunID, &item.Index, &item.BatchNum, &item.MinRow, &item.MaxRow,
			&item.NumDocs, &reason, &items, &item.NumAttempts, &item.Status, &item.Created,
		)
		if err != nil {
			return []FailedBatch{}, fmt.Errorf("failed to load pending batches: %w", err)
		}
		item.Reason = reason.String
		if err := json.Unmarshal([]byte(items), &item.Items); err != nil {
			return []FailedBatch{}, fmt.Errorf("failed to decode items of batch %d: %w", item.ID, err)
		}
		ans = append(ans, item)
	}
	if err := rows.Err(); err != nil {
		return []FailedBatch{}, fmt.Errorf("failed to load pending batches: %w", err)
	}
	return ans, nil
}

func (ops *MySQLOps) UpdateFailedBatchStatus(id int64, status FailedBatchStatus, numAttempts int) error {
	_, err := ops.db.Exec(
		"UPDATE zipfinder_failed_batches SET status = ?, num_attempts = ?, last_update = ? WHERE id = ?",
		status, numAttempts, time.Now().In(ops.tz), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of failed batch %d: %w", id, err)
	}
	return nil
}

// RemoveResolvedFailedBatches deletes at most limit resolved batches
// last updated before olderThan. The number of removed batches is returned.
func (ops *MySQLOps) RemoveResolvedFailedBatches(olderThan time.Time, limit int) (int, error) {
	res, err := ops.db.Exec(
		"DELETE FROM zipfinder_failed_batches WHERE status = ? AND last_update < ? ORDER BY id LIMIT ?",
		StatusResolved, olderThan.In(ops.tz), limit,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove resolved batches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to remove resolved batches: %w", err)
	}
	return int(n), nil
}

func (ops *MySQLOps) Close() error {
	return ops.db.Close()
}

func NewMySQLOps(db *sql.DB, tz *time.Location) *MySQLOps {
	return &MySQLOps{db: db, tz: tz}
}
