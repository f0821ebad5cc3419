package blog

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("post not found")
)

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post) (Post, error)
		GetPost(ctx context.Context, id primitive.ObjectID) (Post, error)
		// QueryPublished returns published posts, newest first, with the
		// unpaginated total.
		QueryPublished(ctx context.Context, f Filter) ([]Post, int, error)
		// QueryPosts returns every post regardless of status, newest first.
		QueryPosts(ctx context.Context) ([]Post, error)
		// SavePost persists the whole post document in a single atomic write.
		SavePost(ctx context.Context, p Post) (Post, error)
		DeletePost(ctx context.Context, id primitive.ObjectID) error
		// IncrementViews bumps the view counter without racing concurrent
		// readers on the rest of the document.
		IncrementViews(ctx context.Context, id primitive.ObjectID) error
		StatusStats(ctx context.Context) ([]StatusStat, error)
		CategoryStats(ctx context.Context) ([]CategoryStat, error)
		ViewStats(ctx context.Context) (ViewStat, error)
		CountPosts(ctx context.Context) (int, error)
	}

	Service interface {
		Create(ctx context.Context, np NewPost, author user.User) (Post, error)
		// Get returns the post and bumps its view counter when published.
		Get(ctx context.Context, id string) (Post, error)
		Published(ctx context.Context, f Filter) ([]Post, int, error)
		All(ctx context.Context) ([]Post, error)
		Update(ctx context.Context, id string, up UpdatePost, actor user.User) (Post, error)
		Delete(ctx context.Context, id string, actor user.User) error
		Publish(ctx context.Context, id string, actor user.User) (Post, error)
		Archive(ctx context.Context, id string, actor user.User) (Post, error)
		AddComment(ctx context.Context, id string, nc NewComment, actor user.User) (Post, error)
		Stats(ctx context.Context) (Stats, error)
		Count(ctx context.Context) (int, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, np NewPost, author user.User) (Post, error) {
	now := time.Now().UTC()
	p := Post{
		Title:           np.Title,
		Content:         np.Content,
		MetaDescription: np.MetaDescription,
		Category:        np.Category,
		Tags:            np.Tags,
		Author:          author.ID,
		Status:          StatusDraft,
		FeaturedImage:   np.FeaturedImage,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreatePost(ctx, p)
}

func (svc *service) Get(ctx context.Context, id string) (Post, error) {
	p, err := svc.get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if p.IsPublished() {
		if err = svc.repo.IncrementViews(ctx, p.ID); err != nil {
			return Post{}, err
		}
		p.Views++
	}
	return p, nil
}

func (svc *service) Published(ctx context.Context, f Filter) ([]Post, int, error) {
	return svc.repo.QueryPublished(ctx, f)
}

func (svc *service) All(ctx context.Context) ([]Post, error) {
	return svc.repo.QueryPosts(ctx)
}

func (svc *service) Update(ctx context.Context, id string, up UpdatePost, actor user.User) (Post, error) {
	p, err := svc.getOwned(ctx, id, actor)
	if err != nil {
		return Post{}, err
	}
	if up.Title != "" {
		p.Title = up.Title
	}
	if up.Content != "" {
		p.Content = up.Content
	}
	if up.MetaDescription != "" {
		p.MetaDescription = up.MetaDescription
	}
	if up.Category != "" {
		p.Category = up.Category
	}
	if up.Tags != nil {
		p.Tags = up.Tags
	}
	if up.FeaturedImage != nil {
		p.FeaturedImage = up.FeaturedImage
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.SavePost(ctx, p)
}

func (svc *service) Delete(ctx context.Context, id string, actor user.User) error {
	p, err := svc.getOwned(ctx, id, actor)
	if err != nil {
		return err
	}
	return svc.repo.DeletePost(ctx, p.ID)
}

func (svc *service) Publish(ctx context.Context, id string, actor user.User) (Post, error) {
	p, err := svc.getOwned(ctx, id, actor)
	if err != nil {
		return Post{}, err
	}
	now := time.Now().UTC()
	p.Status = StatusPublished
	p.PublishedAt = &now
	p.UpdatedAt = now
	return svc.repo.SavePost(ctx, p)
}

func (svc *service) Archive(ctx context.Context, id string, actor user.User) (Post, error) {
	p, err := svc.getOwned(ctx, id, actor)
	if err != nil {
		return Post{}, err
	}
	p.Status = StatusArchived
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.SavePost(ctx, p)
}

// AddComment appends a comment to a published post and emails its author.
func (svc *service) AddComment(ctx context.Context, id string, nc NewComment, actor user.User) (Post, error) {
	p, err := svc.get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.IsPublished() {
		return Post{}, core.NewInvalidTransitionError("cannot comment on an unpublished post")
	}
	p.addComment(actor.ID, nc.Content)
	p.UpdatedAt = time.Now().UTC()

	p, err = svc.repo.SavePost(ctx, p)
	if err != nil {
		return Post{}, err
	}
	if !p.IsAuthor(actor.ID) {
		go svc.sendCommentMail(context.Background(), p)
	}
	return p, nil
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	statusStats, err := svc.repo.StatusStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	categoryStats, err := svc.repo.CategoryStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	viewStats, err := svc.repo.ViewStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		StatusStats:   statusStats,
		CategoryStats: categoryStats,
		ViewStats:     viewStats,
	}, nil
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountPosts(ctx)
}

// helpers

func (svc *service) get(ctx context.Context, id string) (Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Post{}, ErrNotFound
	}
	return svc.repo.GetPost(ctx, oid)
}

// getOwned fetches the post and checks the actor is its author or an admin.
func (svc *service) getOwned(ctx context.Context, id string, actor user.User) (Post, error) {
	p, err := svc.get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !actor.IsAdmin() && !p.IsAuthor(actor.ID) {
		return Post{}, core.NewForbiddenError("only the author or an admin may modify this post")
	}
	return p, nil
}

func (svc *service) sendCommentMail(ctx context.Context, p Post) {
	author, err := svc.usrSvc.GetByID(ctx, p.Author.Hex())
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: author.Name, Address: author.Email}},
		Subject: "New Comment on Your Post",
		BodyStr: fmt.Sprintf("Someone commented on your post: %s", p.Title),
	})
}
