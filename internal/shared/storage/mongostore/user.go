package mongostore

import (
	"context"
	"fmt"
	"time"

	"contacts-api/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	id, err := s.nextSequence(ctx, ColUsers)
	if err != nil {
		return fmt.Errorf("mongostore: allocate user id: %w", err)
	}
	now := time.Now().UTC()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), byID(id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "username", Value: username}})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}})
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.User](ctx, s.col(ColUsers), bson.D{}, opts)
}

func (s *Store) ConfirmUserEmail(ctx context.Context, email string) error {
	return updateFields(ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}}, bson.D{
		{Key: "confirmed", Value: true},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) UpdateUserPassword(ctx context.Context, email, passwordHash string) error {
	return updateFields(ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}}, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) UpdateUserAvatar(ctx context.Context, id int64, avatarURL string) error {
	return updateFields(ctx, s.col(ColUsers), byID(id), bson.D{
		{Key: "avatar", Value: avatarURL},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) UpdateUserRole(ctx context.Context, id int64, role model.UserRole) error {
	return updateFields(ctx, s.col(ColUsers), byID(id), bson.D{
		{Key: "role", Value: role},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}
