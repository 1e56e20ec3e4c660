package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// nextSequence 派发 name 对应的下一个自增序号
//
// counters 文档形如 {_id: "users", seq: 42}，通过 $inc + upsert 原子递增，
// 与 SQL 实现的自增主键保持同构，保证并发创建不会重号。
func (s *Store) nextSequence(ctx context.Context, name string) (int64, error) {
	res := s.col(ColCounters).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("mongostore: next sequence for %s: %w", name, wrapError(err))
	}
	return doc.Seq, nil
}
