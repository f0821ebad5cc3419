package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/message"
)

type messageRepository struct {
	col *mongo.Collection
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *mongo.Database) message.Repository {
	return &messageRepository{col: db.Collection(messagesCollection)}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	res, err := repo.col.InsertOne(ctx, m)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	m.ID = res.InsertedID.(primitive.ObjectID)
	return m, nil
}

func (repo *messageRepository) UserMessages(ctx context.Context, uid primitive.ObjectID) ([]message.Message, error) {
	return repo.query(ctx, bson.M{
		"$or": bson.A{bson.M{"sender": uid}, bson.M{"recipient": uid}},
	}, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

func (repo *messageRepository) Conversation(ctx context.Context, a, b primitive.ObjectID) ([]message.Message, error) {
	return repo.query(ctx, bson.M{
		"$or": bson.A{
			bson.M{"sender": a, "recipient": b},
			bson.M{"sender": b, "recipient": a},
		},
	}, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (repo *messageRepository) CountUnread(ctx context.Context, recipient primitive.ObjectID) (int, error) {
	count, err := repo.col.CountDocuments(ctx, bson.M{"recipient": recipient, "read": false})
	if err != nil {
		return 0, errors.Wrap(err, "counting unread messages")
	}
	return int(count), nil
}

func (repo *messageRepository) MarkConversationRead(ctx context.Context, sender, recipient primitive.ObjectID) (int, error) {
	res, err := repo.col.UpdateMany(ctx,
		bson.M{"sender": sender, "recipient": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return int(res.ModifiedCount), nil
}

func (repo *messageRepository) CountMessages(ctx context.Context) (int, error) {
	count, err := repo.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "counting messages")
	}
	return int(count), nil
}

func (repo *messageRepository) query(ctx context.Context, filter bson.M, sort bson.D) ([]message.Message, error) {
	cursor, err := repo.col.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]message.Message, 0)
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, errors.Wrap(err, "decoding messages")
	}
	return msgs, nil
}
