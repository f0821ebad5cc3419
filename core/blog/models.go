package blog

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
)

// Post statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var AllStatuses = []string{StatusDraft, StatusPublished, StatusArchived}

type (
	FeaturedImage struct {
		URL string `json:"url" bson:"url"`
		Alt string `json:"alt" bson:"alt"`
	}

	// Comment is embedded in its post; it has no collection of its own.
	Comment struct {
		ID        string             `json:"id" bson:"id"`
		User      primitive.ObjectID `json:"user" bson:"user"`
		Content   string             `json:"content" bson:"content"`
		CreatedAt time.Time          `json:"created_at" bson:"created_at"` // UTC
	}

	Post struct {
		ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
		Title           string             `json:"title" bson:"title"`
		Content         string             `json:"content" bson:"content"`
		MetaDescription string             `json:"meta_description" bson:"meta_description"`
		Category        string             `json:"category" bson:"category"`
		Tags            []string           `json:"tags,omitempty" bson:"tags,omitempty"`
		Author          primitive.ObjectID `json:"author" bson:"author"`
		Status          string             `json:"status" bson:"status"`
		FeaturedImage   *FeaturedImage     `json:"featured_image,omitempty" bson:"featured_image,omitempty"`
		Views           int                `json:"views" bson:"views"`
		PublishedAt     *time.Time         `json:"published_at,omitempty" bson:"published_at,omitempty"` // UTC
		Comments        []Comment          `json:"comments" bson:"comments"`
		CreatedAt       time.Time          `json:"created_at" bson:"created_at"` // UTC
		UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"` // UTC
	}
)

func (p *Post) IsPublished() bool { return p.Status == StatusPublished }

func (p *Post) IsAuthor(uid primitive.ObjectID) bool { return p.Author == uid }

func (p *Post) addComment(uid primitive.ObjectID, content string) Comment {
	c := Comment{
		ID:        uuid.New().String(),
		User:      uid,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	p.Comments = append(p.Comments, c)
	return c
}

// NewPost contains information needed to create a new Post.
type NewPost struct {
	Title           string         `json:"title" validate:"required"`
	Content         string         `json:"content" validate:"required"`
	MetaDescription string         `json:"meta_description" validate:"required,max=160"`
	Category        string         `json:"category" validate:"required,category"`
	Tags            []string       `json:"tags" validate:"omitempty,dive,required"`
	FeaturedImage   *FeaturedImage `json:"featured_image"`
}

func (np *NewPost) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.MetaDescription = core.CleanString(np.MetaDescription)
	for i, tag := range np.Tags {
		np.Tags[i] = core.CleanString(tag)
	}
	return core.Validate.Struct(np)
}

// UpdatePost carries the fields an author may edit; a status change goes
// through the publish/archive transitions, not through here.
type UpdatePost struct {
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	MetaDescription string         `json:"meta_description" validate:"omitempty,max=160"`
	Category        string         `json:"category" validate:"omitempty,category"`
	Tags            []string       `json:"tags" validate:"omitempty,dive,required"`
	FeaturedImage   *FeaturedImage `json:"featured_image"`
}

func (up *UpdatePost) Validate() error {
	up.Title = core.CleanString(up.Title)
	up.MetaDescription = core.CleanString(up.MetaDescription)
	for i, tag := range up.Tags {
		up.Tags[i] = core.CleanString(tag)
	}
	return core.Validate.Struct(up)
}

// NewComment is a comment payload.
type NewComment struct {
	Content string `json:"content" validate:"required"`
}

func (nc *NewComment) Validate() error {
	nc.Content = core.CleanString(nc.Content)
	return core.Validate.Struct(nc)
}

// Filter narrows published-post queries; zero values are ignored.
type Filter struct {
	Category string
	Tags     []string
	Page     int
	Limit    int
}

// Stats buckets

type (
	StatusStat struct {
		Status string `json:"status" bson:"_id"`
		Count  int    `json:"count" bson:"count"`
	}

	CategoryStat struct {
		Category string `json:"category" bson:"_id"`
		Count    int    `json:"count" bson:"count"`
	}

	ViewStat struct {
		TotalViews int     `json:"total_views" bson:"total_views"`
		AvgViews   float64 `json:"avg_views" bson:"avg_views"`
	}

	Stats struct {
		StatusStats   []StatusStat   `json:"status_stats"`
		CategoryStats []CategoryStat `json:"category_stats"`
		ViewStats     ViewStat       `json:"view_stats"`
	}
)
