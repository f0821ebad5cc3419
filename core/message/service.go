package message

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// EventNewMessage is the event type pushed to a recipient's open connection
// when a message lands.
const EventNewMessage = "newMessage"

var (
	// errors
	ErrNotFound = errors.New("message not found")
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		// UserMessages returns every message the user sent or received,
		// newest first.
		UserMessages(ctx context.Context, uid primitive.ObjectID) ([]Message, error)
		// Conversation returns the full thread between two users in
		// chronological order.
		Conversation(ctx context.Context, a, b primitive.ObjectID) ([]Message, error)
		CountUnread(ctx context.Context, recipient primitive.ObjectID) (int, error)
		// MarkConversationRead flips the read flag on every unread message
		// from sender to recipient; returns the number of messages flipped.
		MarkConversationRead(ctx context.Context, sender, recipient primitive.ObjectID) (int, error)
		CountMessages(ctx context.Context) (int, error)
	}

	Service interface {
		Send(ctx context.Context, sender user.User, nm NewMessage) (Message, error)
		All(ctx context.Context, requester user.User) ([]Message, error)
		Conversation(ctx context.Context, requester user.User, counterpartID string) ([]Message, error)
		RecentConversations(ctx context.Context, requester user.User) ([]ConversationSummary, error)
		MarkRead(ctx context.Context, requester user.User, counterpartID string) error
		UnreadCount(ctx context.Context, requester user.User) (int, error)
		Count(ctx context.Context) (int, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		pushSvc core.PushService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService, pushSvc core.PushService) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		pushSvc: pushSvc,
	}
}

// Send stores the message, pushes it to the recipient's open connection if
// any, and falls back to an email notice when the recipient is offline.
func (svc *service) Send(ctx context.Context, sender user.User, nm NewMessage) (Message, error) {
	recipient, err := svc.resolveRecipient(ctx, nm.Recipient)
	if err != nil {
		return Message{}, err
	}

	m := Message{
		Content:     nm.Content,
		Sender:      sender.ID,
		Recipient:   recipient.ID,
		Attachments: nm.attachments(),
		CreatedAt:   time.Now().UTC(),
	}
	m, err = svc.repo.CreateMessage(ctx, m)
	if err != nil {
		return Message{}, err
	}

	recipientID := recipient.ID.Hex()
	if svc.pushSvc.IsConnected(recipientID) {
		svc.pushSvc.Dispatch(recipientID, EventNewMessage, m)
	} else {
		go svc.sendNewMessageMail(recipient, sender)
	}
	return m, nil
}

func (svc *service) All(ctx context.Context, requester user.User) ([]Message, error) {
	return svc.repo.UserMessages(ctx, requester.ID)
}

func (svc *service) Conversation(ctx context.Context, requester user.User, counterpartID string) ([]Message, error) {
	oid, err := primitive.ObjectIDFromHex(counterpartID)
	if err != nil {
		return nil, user.ErrNotFound
	}
	return svc.repo.Conversation(ctx, requester.ID, oid)
}

// RecentConversations derives one summary per distinct counterparty: the
// latest message between the pair and the number of unread messages addressed
// to the requester. Latest is by creation time, ties broken by the larger id
// so the ordering is deterministic.
func (svc *service) RecentConversations(ctx context.Context, requester user.User) ([]ConversationSummary, error) {
	msgs, err := svc.repo.UserMessages(ctx, requester.ID)
	if err != nil {
		return nil, err
	}

	type group struct {
		last   Message
		unread int
	}
	groups := make(map[primitive.ObjectID]*group)
	for _, m := range msgs {
		other := m.Sender
		if other == requester.ID {
			other = m.Recipient
		}
		g, ok := groups[other]
		if !ok {
			g = &group{last: m}
			groups[other] = g
		} else if m.CreatedAt.After(g.last.CreatedAt) ||
			(m.CreatedAt.Equal(g.last.CreatedAt) && m.ID.Hex() > g.last.ID.Hex()) {
			g.last = m
		}
		if m.Recipient == requester.ID && !m.Read {
			g.unread++
		}
	}
	if len(groups) == 0 {
		return []ConversationSummary{}, nil
	}

	ids := make([]primitive.ObjectID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	counterparts, err := svc.usrSvc.QueryUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(groups))
	for _, usr := range counterparts {
		g, ok := groups[usr.ID]
		if !ok {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			Counterpart: NewCounterpart(usr),
			LastMessage: g.last,
			UnreadCount: g.unread,
		})
	}
	// presentation order: most recent conversation first
	sort.Slice(summaries, func(i, j int) bool {
		si, sj := summaries[i].LastMessage, summaries[j].LastMessage
		if !si.CreatedAt.Equal(sj.CreatedAt) {
			return si.CreatedAt.After(sj.CreatedAt)
		}
		return si.ID.Hex() > sj.ID.Hex()
	})
	return summaries, nil
}

// MarkRead flips every unread message from the counterpart to the requester.
// Calling it again is a no-op, not an error.
func (svc *service) MarkRead(ctx context.Context, requester user.User, counterpartID string) error {
	oid, err := primitive.ObjectIDFromHex(counterpartID)
	if err != nil {
		return user.ErrNotFound
	}
	_, err = svc.repo.MarkConversationRead(ctx, oid, requester.ID)
	return err
}

func (svc *service) UnreadCount(ctx context.Context, requester user.User) (int, error) {
	return svc.repo.CountUnread(ctx, requester.ID)
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountMessages(ctx)
}

// resolveRecipient looks the recipient up by id; the "admin" shorthand
// resolves to any admin account.
func (svc *service) resolveRecipient(ctx context.Context, key string) (user.User, error) {
	if key == AdminRecipient {
		return svc.usrSvc.GetAdmin(ctx)
	}
	return svc.usrSvc.GetByID(ctx, key)
}

func (svc *service) sendNewMessageMail(recipient, sender user.User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
		Subject: "New Message Received",
		BodyStr: fmt.Sprintf("You have received a new message from %s", sender.Name),
	})
}
