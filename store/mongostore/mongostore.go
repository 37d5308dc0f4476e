// Package mongostore 基于 MongoDB 的事务存储，乐观锁通过带版本过滤的更新表达
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tcc/api"
	"tcc/txmanager"
)

type document struct {
	Xid             string    `bson:"_id"`
	TransactionType int       `bson:"transactionType"`
	Status          int       `bson:"status"`
	RetriedCount    int       `bson:"retriedCount"`
	CreateTime      time.Time `bson:"createTime"`
	LastUpdateTime  time.Time `bson:"lastUpdateTime"`
	Version         int64     `bson:"version"`
	// 完整事务的 JSON 序列化内容
	Content []byte `bson:"content"`
}

type Store struct {
	collection *mongo.Collection
}

// NewStore 构建存储并确保恢复任务依赖的索引存在
func NewStore(client *mongo.Client, database string, collection string) (*Store, error) {
	store := &Store{
		collection: client.Database(database).Collection(collection),
	}
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "lastUpdateTime", Value: 1}, {Key: "retriedCount", Value: 1}},
		Options: options.Index().SetName("LastUpdateTime_RetriedCount"),
	}
	if _, err := store.collection.Indexes().CreateOne(context.Background(), index); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Create(ctx context.Context, tx *txmanager.Transaction) error {
	doc, err := toDocument(tx)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return txmanager.ErrXidExists
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, xid api.Xid) (*txmanager.Transaction, error) {
	doc := &document{}
	err := s.collection.FindOne(ctx, bson.M{"_id": xid.String()}).Decode(doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, txmanager.ErrTransactionNotExist
	}
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

func (s *Store) Update(ctx context.Context, tx *txmanager.Transaction) error {
	expectedVersion := tx.Version
	lastUpdateTime := tx.LastUpdateTime

	tx.Version++
	tx.LastUpdateTime = time.Now()
	doc, err := toDocument(tx)
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": tx.Xid.String(), "version": expectedVersion},
		bson.M{"$set": bson.M{
			"status":         doc.Status,
			"retriedCount":   doc.RetriedCount,
			"lastUpdateTime": doc.LastUpdateTime,
			"version":        doc.Version,
			"content":        doc.Content,
		}})
	if err != nil {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return err
	}
	if result.MatchedCount == 0 {
		tx.Version, tx.LastUpdateTime = expectedVersion, lastUpdateTime
		return txmanager.ErrVersionConflict
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tx *txmanager.Transaction) error {
	result, err := s.collection.DeleteOne(ctx,
		bson.M{"_id": tx.Xid.String(), "version": tx.Version})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		err := s.collection.FindOne(ctx, bson.M{"_id": tx.Xid.String()}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
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
	cursor, err := s.collection.Find(ctx, bson.M{
		"lastUpdateTime": bson.M{"$lt": lastUpdateBefore},
		"retriedCount":   bson.M{"$lt": maxRetriedCount},
	}, options.Find().SetSort(bson.D{{Key: "lastUpdateTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stale []*txmanager.Transaction
	for cursor.Next(ctx) {
		doc := &document{}
		if err := cursor.Decode(doc); err != nil {
			return nil, err
		}
		tx, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		stale = append(stale, tx)
	}
	return stale, cursor.Err()
}

func toDocument(tx *txmanager.Transaction) (*document, error) {
	content, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return &document{
		Xid:             tx.Xid.String(),
		TransactionType: int(tx.Type),
		Status:          int(tx.Status),
		RetriedCount:    tx.RetriedCount,
		CreateTime:      tx.CreateTime,
		LastUpdateTime:  tx.LastUpdateTime,
		Version:         tx.Version,
		Content:         content,
	}, nil
}

func fromDocument(doc *document) (*txmanager.Transaction, error) {
	tx := &txmanager.Transaction{}
	if err := json.Unmarshal(doc.Content, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
