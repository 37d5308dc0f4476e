// Package memory 进程内事务存储，序列化语义与真实存储保持一致
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tcc/api"
	"tcc/txmanager"
)

// Store 以 JSON 序列化副本保存事务，读写都经过一次序列化往返，
// 行为与外部存储对齐，可直接用作测试替身
type Store struct {
	mu  sync.RWMutex
	txs map[api.Xid][]byte
}

func NewStore() *Store {
	return &Store{
		txs: make(map[api.Xid][]byte),
	}
}

func (s *Store) Create(ctx context.Context, tx *txmanager.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.Xid]; ok {
		return txmanager.ErrXidExists
	}
	content, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	s.txs[tx.Xid] = content
	return nil
}

func (s *Store) Get(ctx context.Context, xid api.Xid) (*txmanager.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.txs[xid]
	if !ok {
		return nil, txmanager.ErrTransactionNotExist
	}
	tx := &txmanager.Transaction{}
	if err := json.Unmarshal(content, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) Update(ctx context.Context, tx *txmanager.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.load(tx.Xid)
	if err != nil {
		return err
	}
	if stored.Version != tx.Version {
		return txmanager.ErrVersionConflict
	}

	expectedVersion := tx.Version
	lastUpdateTime := tx.LastUpdateTime
	tx.Version++
	tx.LastUpdateTime = time.Now()
	content, err := json.Marshal(tx)
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}
	s.txs[tx.Xid] = content
	return nil
}

func (s *Store) Delete(ctx context.Context, tx *txmanager.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.load(tx.Xid)
	if err != nil {
		// 记录已不存在，删除幂等成功
		return nil
	}
	if stored.Version != tx.Version {
		return txmanager.ErrVersionConflict
	}
	delete(s.txs, tx.Xid)
	return nil
}

func (s *Store) ListStale(ctx context.Context, lastUpdateBefore time.Time, maxRetriedCount int) ([]*txmanager.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*txmanager.Transaction
	for xid := range s.txs {
		tx, err := s.load(xid)
		if err != nil {
			return nil, err
		}
		if tx.LastUpdateTime.Before(lastUpdateBefore) && tx.RetriedCount < maxRetriedCount {
			stale = append(stale, tx)
		}
	}
	return stale, nil
}

func (s *Store) load(xid api.Xid) (*txmanager.Transaction, error) {
	content, ok := s.txs[xid]
	if !ok {
		return nil, txmanager.ErrTransactionNotExist
	}
	tx := &txmanager.Transaction{}
	if err := json.Unmarshal(content, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
