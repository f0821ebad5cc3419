package message

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// AdminRecipient is the shorthand students may use to message an admin
// without knowing any admin's id.
const AdminRecipient = "admin"

type (
	// Attachment is a file reference embedded in a message.
	Attachment struct {
		ID       string `json:"id" bson:"id"`
		Filename string `json:"filename" bson:"filename"`
		Path     string `json:"path" bson:"path"`
		Mimetype string `json:"mimetype" bson:"mimetype"`
	}

	// Message is a direct message between two users. Once created only the
	// read flag ever changes.
	Message struct {
		ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
		Content     string             `json:"content" bson:"content"`
		Sender      primitive.ObjectID `json:"sender" bson:"sender"`
		Recipient   primitive.ObjectID `json:"recipient" bson:"recipient"`
		Read        bool               `json:"read" bson:"read"`
		Attachments []Attachment       `json:"attachments,omitempty" bson:"attachments,omitempty"`
		CreatedAt   time.Time          `json:"created_at" bson:"created_at"` // UTC
	}

	// Counterpart is the public profile of the user on the other side of a
	// conversation.
	Counterpart struct {
		ID        primitive.ObjectID `json:"id"`
		Name      string             `json:"name"`
		StudentID string             `json:"student_id,omitempty"`
		Role      string             `json:"role"`
		Avatar    string             `json:"avatar,omitempty"`
	}

	// ConversationSummary is the derived latest-message-plus-unread-count view
	// of one conversation. It is recomputed on demand, never stored.
	ConversationSummary struct {
		Counterpart Counterpart `json:"counterpart"`
		LastMessage Message     `json:"last_message"`
		UnreadCount int         `json:"unread_count"`
	}
)

func NewCounterpart(usr user.User) Counterpart {
	return Counterpart{
		ID:        usr.ID,
		Name:      usr.Name,
		StudentID: usr.StudentID,
		Role:      usr.Role,
		Avatar:    usr.Avatar,
	}
}

// NewMessage contains information needed to send a new Message.
type NewMessage struct {
	Recipient   string          `json:"recipient" validate:"required"`
	Content     string          `json:"content" validate:"required"`
	Attachments []NewAttachment `json:"attachments" validate:"omitempty,dive"`
}

type NewAttachment struct {
	Filename string `json:"filename" validate:"required"`
	Path     string `json:"path" validate:"required"`
	Mimetype string `json:"mimetype" validate:"required"`
}

func (nm *NewMessage) Validate() error {
	nm.Content = core.CleanString(nm.Content)
	nm.Recipient = core.CleanString(nm.Recipient)
	return core.Validate.Struct(nm)
}

func (nm *NewMessage) attachments() []Attachment {
	if len(nm.Attachments) == 0 {
		return nil
	}
	atts := make([]Attachment, 0, len(nm.Attachments))
	for _, na := range nm.Attachments {
		atts = append(atts, Attachment{
			ID:       uuid.New().String(),
			Filename: na.Filename,
			Path:     na.Path,
			Mimetype: na.Mimetype,
		})
	}
	return atts
}
