package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/jobboard/server/internal/domain/users"
)

type userModel struct {
	ID       string    `bson:"_id"`
	Email    string    `bson:"email"`
	EmailKey string    `bson:"email_key"`
	Password string    `bson:"password"`
	Created  time.Time `bson:"createdAt"`
}

func (m userModel) toUser() *users.User {
	return &users.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.Password,
		CreatedAt:    m.Created.UTC(),
	}
}

type UserRepository struct {
	col *mongod.Collection
}

func (r *UserRepository) Create(ctx context.Context, user users.User) (err error) {
	defer func(start time.Time) { observe("create_user", start, err) }(time.Now())

	_, err = r.col.InsertOne(ctx, userModel{
		ID:       user.ID,
		Email:    user.Email,
		EmailKey: users.NormalizeEmail(user.Email),
		Password: user.PasswordHash,
		Created:  user.CreatedAt,
	})
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("mongo: insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.findOne(ctx, "get_user_by_email", bson.M{"email_key": users.NormalizeEmail(email)})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.findOne(ctx, "get_user_by_id", bson.M{"_id": id})
}

func (r *UserRepository) findOne(ctx context.Context, operation string, filter bson.M) (_ *users.User, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	var m userModel
	if decodeErr := r.col.FindOne(ctx, filter).Decode(&m); decodeErr != nil {
		if isNoDocuments(decodeErr) {
			return nil, users.ErrNotFound
		}
		err = fmt.Errorf("mongo: %s: %w", operation, decodeErr)
		return nil, err
	}
	return m.toUser(), nil
}
