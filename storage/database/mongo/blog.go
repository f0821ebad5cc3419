package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/blog"
)

type blogRepository struct {
	col *mongo.Collection
}

var _ blog.Repository = (*blogRepository)(nil)

func NewBlogRepository(db *mongo.Database) blog.Repository {
	return &blogRepository{col: db.Collection(blogsCollection)}
}

func (repo *blogRepository) CreatePost(ctx context.Context, p blog.Post) (blog.Post, error) {
	res, err := repo.col.InsertOne(ctx, p)
	if err != nil {
		return blog.Post{}, errors.Wrap(err, "inserting post")
	}
	p.ID = res.InsertedID.(primitive.ObjectID)
	return p, nil
}

func (repo *blogRepository) GetPost(ctx context.Context, id primitive.ObjectID) (blog.Post, error) {
	var p blog.Post
	if err := repo.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return blog.Post{}, blog.ErrNotFound
		}
		return blog.Post{}, errors.Wrap(err, "getting post")
	}
	return p, nil
}

func (repo *blogRepository) QueryPublished(ctx context.Context, f blog.Filter) ([]blog.Post, int, error) {
	query := bson.M{
		"status":       blog.StatusPublished,
		"published_at": bson.M{"$lte": time.Now().UTC()},
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if len(f.Tags) > 0 {
		query["tags"] = bson.M{"$in": f.Tags}
	}

	total, err := repo.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting published posts")
	}

	opts := options.Find().SetSort(bson.D{{Key: "published_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
		if f.Page > 1 {
			opts.SetSkip(int64((f.Page - 1) * f.Limit))
		}
	}

	posts, err := repo.query(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return posts, int(total), nil
}

func (repo *blogRepository) QueryPosts(ctx context.Context) ([]blog.Post, error) {
	return repo.query(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (repo *blogRepository) SavePost(ctx context.Context, p blog.Post) (blog.Post, error) {
	// the view counter is bumped out of band; set every field but views so
	// a concurrent bump survives the edit
	update := bson.M{"$set": bson.M{
		"title":            p.Title,
		"content":          p.Content,
		"meta_description": p.MetaDescription,
		"category":         p.Category,
		"tags":             p.Tags,
		"status":           p.Status,
		"featured_image":   p.FeaturedImage,
		"published_at":     p.PublishedAt,
		"comments":         p.Comments,
		"updated_at":       p.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var saved blog.Post
	if err := repo.col.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&saved); err != nil {
		if err == mongo.ErrNoDocuments {
			return blog.Post{}, blog.ErrNotFound
		}
		return blog.Post{}, errors.Wrap(err, "saving post")
	}
	return saved, nil
}

func (repo *blogRepository) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	res, err := repo.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	if res.DeletedCount == 0 {
		return blog.ErrNotFound
	}
	return nil
}

func (repo *blogRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	res, err := repo.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing views")
	}
	if res.MatchedCount == 0 {
		return blog.ErrNotFound
	}
	return nil
}

func (repo *blogRepository) StatusStats(ctx context.Context) ([]blog.StatusStat, error) {
	var stats []blog.StatusStat
	if err := repo.groupCount(ctx, "$status", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (repo *blogRepository) CategoryStats(ctx context.Context) ([]blog.CategoryStat, error) {
	var stats []blog.CategoryStat
	if err := repo.groupCount(ctx, "$category", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (repo *blogRepository) ViewStats(ctx context.Context) (blog.ViewStat, error) {
	cursor, err := repo.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"total_views": bson.M{"$sum": "$views"},
			"avg_views":   bson.M{"$avg": "$views"},
		}}},
	})
	if err != nil {
		return blog.ViewStat{}, errors.Wrap(err, "aggregating view stats")
	}
	var stats []blog.ViewStat
	if err = cursor.All(ctx, &stats); err != nil {
		return blog.ViewStat{}, errors.Wrap(err, "decoding view stats")
	}
	if len(stats) == 0 {
		return blog.ViewStat{}, nil
	}
	return stats[0], nil
}

func (repo *blogRepository) CountPosts(ctx context.Context) (int, error) {
	count, err := repo.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "counting posts")
	}
	return int(count), nil
}

func (repo *blogRepository) query(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]blog.Post, error) {
	cursor, err := repo.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0)
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, errors.Wrap(err, "decoding posts")
	}
	return posts, nil
}

func (repo *blogRepository) groupCount(ctx context.Context, field string, out interface{}) error {
	cursor, err := repo.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return errors.Wrapf(err, "aggregating posts by %s", field)
	}
	if err = cursor.All(ctx, out); err != nil {
		return errors.Wrap(err, "decoding post stats")
	}
	return nil
}
