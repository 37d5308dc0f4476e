// Package cached 事务存储的读穿透缓存装饰器。
// 事务在一条调用链内只有唯一的持有方，缓存命中可省去完成路径上的重复查询。
package cached

import (
	"context"
	"sync"
	"time"

	"tcc/api"
	"tcc/txmanager"
)

type Store struct {
	mu       sync.RWMutex
	delegate txmanager.TransactionStore
	cache    map[api.Xid]*txmanager.Transaction
}

func NewStore(delegate txmanager.TransactionStore) *Store {
	return &Store{
		delegate: delegate,
		cache:    make(map[api.Xid]*txmanager.Transaction),
	}
}

func (s *Store) Create(ctx context.Context, tx *txmanager.Transaction) error {
	if err := s.delegate.Create(ctx, tx); err != nil {
		return err
	}
	s.put(tx)
	return nil
}

func (s *Store) Get(ctx context.Context, xid api.Xid) (*txmanager.Transaction, error) {
	s.mu.RLock()
	tx, ok := s.cache[xid]
	s.mu.RUnlock()
	if ok {
		return tx, nil
	}
	tx, err := s.delegate.Get(ctx, xid)
	if err != nil {
		return nil, err
	}
	s.put(tx)
	return tx, nil
}

func (s *Store) Update(ctx context.Context, tx *txmanager.Transaction) error {
	if err := s.delegate.Update(ctx, tx); err != nil {
		// 版本冲突说明缓存可能已经落后，失效掉
		s.evict(tx.Xid)
		return err
	}
	s.put(tx)
	return nil
}

func (s *Store) Delete(ctx context.Context, tx *txmanager.Transaction) error {
	if err := s.delegate.Delete(ctx, tx); err != nil {
		return err
	}
	s.evict(tx.Xid)
	return nil
}

func (s *Store) ListStale(ctx context.Context, lastUpdateBefore time.Time, maxRetriedCount int) ([]*txmanager.Transaction, error) {
	return s.delegate.ListStale(ctx, lastUpdateBefore, maxRetriedCount)
}

func (s *Store) put(tx *txmanager.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[tx.Xid] = tx
}

func (s *Store) evict(xid api.Xid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, xid)
}
