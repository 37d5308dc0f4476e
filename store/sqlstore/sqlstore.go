// Package sqlstore 基于 SQLite 的事务存储，乐观锁通过条件更新表达
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"tcc/api"
	"tcc/txmanager"
)

const schema = `
CREATE TABLE IF NOT EXISTS tcc_transaction (
	xid              TEXT PRIMARY KEY,
	transaction_type INTEGER NOT NULL,
	status           INTEGER NOT NULL,
	retried_count    INTEGER NOT NULL DEFAULT 0,
	create_time      INTEGER NOT NULL,
	last_update_time INTEGER NOT NULL,
	version          INTEGER NOT NULL,
	content          BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tcc_transaction_last_update_time
	ON tcc_transaction (last_update_time);
`

type Store struct {
	db *sql.DB
}

// Open 打开（必要时建表）一个 SQLite 事务存储，dsn 支持 :memory:
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

// NewStore 在现有连接上构建事务存储
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, tx *txmanager.Transaction) error {
	content, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tcc_transaction
			(xid, transaction_type, status, retried_count, create_time, last_update_time, version, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Xid.String(), int(tx.Type), int(tx.Status), tx.RetriedCount,
		tx.CreateTime.UnixNano(), tx.LastUpdateTime.UnixNano(), tx.Version, content)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return txmanager.ErrXidExists
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, xid api.Xid) (*txmanager.Transaction, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM tcc_transaction WHERE xid = ?`, xid.String()).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, txmanager.ErrTransactionNotExist
	}
	if err != nil {
		return nil, err
	}
	return unmarshalTransaction(content)
}

func (s *Store) Update(ctx context.Context, tx *txmanager.Transaction) error {
	expectedVersion := tx.Version
	lastUpdateTime := tx.LastUpdateTime

	tx.Version++
	tx.LastUpdateTime = time.Now()
	content, err := json.Marshal(tx)
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tcc_transaction
			SET status = ?, retried_count = ?, last_update_time = ?, version = ?, content = ?
		 WHERE xid = ? AND version = ?`,
		int(tx.Status), tx.RetriedCount, tx.LastUpdateTime.UnixNano(), tx.Version, content,
		tx.Xid.String(), expectedVersion)
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}
	if affected == 0 {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return txmanager.ErrVersionConflict
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tx *txmanager.Transaction) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tcc_transaction WHERE xid = ? AND version = ?`,
		tx.Xid.String(), tx.Version)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var version int64
		err := s.db.QueryRowContext(ctx,
			`SELECT version FROM tcc_transaction WHERE xid = ?`, tx.Xid.String()).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			// 记录已不存在，删除幂等成功
			return nil
		}
		if err != nil {
			return err
		}
		return txmanager.ErrVersionConflict
	}
	return nil
}

func (s *Store) ListStale(ctx context.Context, lastUpdateBefore time.Time, maxRetriedCount int) ([]*txmanager.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM tcc_transaction
		 WHERE last_update_time < ? AND retried_count < ?
		 ORDER BY last_update_time`,
		lastUpdateBefore.UnixNano(), maxRetriedCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []*txmanager.Transaction
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		tx, err := unmarshalTransaction(content)
		if err != nil {
			return nil, err
		}
		stale = append(stale, tx)
	}
	return stale, rows.Err()
}

func unmarshalTransaction(content []byte) (*txmanager.Transaction, error) {
	tx := &txmanager.Transaction{}
	if err := json.Unmarshal(content, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
