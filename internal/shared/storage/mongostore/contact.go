package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"contacts-api/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ContactStore
// ============================================================================

// byContact 构造「归属该用户的联系人」过滤条件
func byContact(userID, contactID int64) bson.D {
	return bson.D{{Key: "_id", Value: contactID}, {Key: "user_id", Value: userID}}
}

func (s *Store) CreateContact(ctx context.Context, contact *model.Contact) error {
	id, err := s.nextSequence(ctx, ColContacts)
	if err != nil {
		return fmt.Errorf("mongostore: allocate contact id: %w", err)
	}
	now := time.Now().UTC()
	contact.ID = id
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return insertOne(ctx, s.col(ColContacts), contact)
}

func (s *Store) GetContact(ctx context.Context, userID, contactID int64) (*model.Contact, error) {
	return findOne[model.Contact](ctx, s.col(ColContacts), byContact(userID, contactID))
}

func (s *Store) ListContacts(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.Contact](ctx, s.col(ColContacts), bson.D{{Key: "user_id", Value: userID}}, opts)
}

func (s *Store) UpdateContact(ctx context.Context, contact *model.Contact) error {
	return updateFields(ctx, s.col(ColContacts), byContact(contact.UserID, contact.ID), bson.D{
		{Key: "first_name", Value: contact.FirstName},
		{Key: "last_name", Value: contact.LastName},
		{Key: "email", Value: contact.Email},
		{Key: "phone_number", Value: contact.PhoneNumber},
		{Key: "birth_date", Value: contact.BirthDate},
		{Key: "additional_data", Value: contact.AdditionalData},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) DeleteContact(ctx context.Context, userID, contactID int64) error {
	return deleteOne(ctx, s.col(ColContacts), byContact(userID, contactID))
}

func (s *Store) SearchContacts(ctx context.Context, userID int64, q string, offset, limit int) ([]*model.Contact, error) {
	// 查询串按字面量匹配，转义正则元字符
	pattern := bson.D{{Key: "$regex", Value: regexp.QuoteMeta(q)}, {Key: "$options", Value: "i"}}
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "first_name", Value: pattern}},
			bson.D{{Key: "last_name", Value: pattern}},
			bson.D{{Key: "email", Value: pattern}},
		}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.Contact](ctx, s.col(ColContacts), filter, opts)
}

func (s *Store) ListUpcomingBirthdays(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error) {
	today := time.Now()
	next := today.AddDate(0, 0, 7)
	month := bson.D{{Key: "$month", Value: "$birth_date"}}
	day := bson.D{{Key: "$dayOfMonth", Value: "$birth_date"}}

	// 与 SQL 实现同一套窗口条件：只比较月/日，按窗口是否跨月分两种情形
	var expr bson.D
	if today.Month() == next.Month() {
		expr = bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{month, int(today.Month())}}},
			bson.D{{Key: "$gte", Value: bson.A{day, today.Day()}}},
			bson.D{{Key: "$lte", Value: bson.A{day, next.Day()}}},
		}}}
	} else {
		expr = bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{month, int(today.Month())}}},
				bson.D{{Key: "$gte", Value: bson.A{day, today.Day()}}},
			}}},
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{month, int(next.Month())}}},
				bson.D{{Key: "$lte", Value: bson.A{day, next.Day()}}},
			}}},
		}}}
	}

	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "$expr", Value: expr},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.Contact](ctx, s.col(ColContacts), filter, opts)
}
