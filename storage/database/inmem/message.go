package inmemdb

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core/message"
)

type messageRepository struct {
	db *messageTable
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.message}
}

func (repo *messageRepository) query() []message.Message {
	msgs := make([]message.Message, 0, len(repo.db.table))
	for _, m := range repo.db.table {
		msgs = append(msgs, *m)
	}
	return msgs
}

func sortNewestFirst(msgs []message.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID.Hex() > msgs[j].ID.Hex()
	})
}

func (repo *messageRepository) CreateMessage(_ context.Context, m message.Message) (message.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m.ID = primitive.NewObjectID()
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *messageRepository) UserMessages(_ context.Context, uid primitive.ObjectID) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]message.Message, 0)
	for _, m := range repo.query() {
		if m.Sender == uid || m.Recipient == uid {
			msgs = append(msgs, m)
		}
	}
	sortNewestFirst(msgs)
	return msgs, nil
}

func (repo *messageRepository) Conversation(_ context.Context, a, b primitive.ObjectID) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]message.Message, 0)
	for _, m := range repo.query() {
		if (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a) {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID.Hex() < msgs[j].ID.Hex()
	})
	return msgs, nil
}

func (repo *messageRepository) CountUnread(_ context.Context, recipient primitive.ObjectID) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, m := range repo.query() {
		if m.Recipient == recipient && !m.Read {
			count++
		}
	}
	return count, nil
}

func (repo *messageRepository) MarkConversationRead(_ context.Context, sender, recipient primitive.ObjectID) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var flipped int
	for _, m := range repo.db.table {
		if m.Sender == sender && m.Recipient == recipient && !m.Read {
			m.Read = true
			flipped++
		}
	}
	return flipped, nil
}

func (repo *messageRepository) CountMessages(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}
