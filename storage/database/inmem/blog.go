package inmemdb

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core/blog"
)

type blogRepository struct {
	db *blogTable
}

var _ blog.Repository = (*blogRepository)(nil)

func NewBlogRepository(db *DB) blog.Repository {
	return &blogRepository{db: db.blog}
}

func (repo *blogRepository) query() []blog.Post {
	posts := make([]blog.Post, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts
}

func (repo *blogRepository) CreatePost(_ context.Context, p blog.Post) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = primitive.NewObjectID()
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *blogRepository) GetPost(_ context.Context, id primitive.ObjectID) (blog.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.table[id]; ok {
		return *p, nil
	}
	return blog.Post{}, blog.ErrNotFound
}

func (repo *blogRepository) QueryPublished(_ context.Context, f blog.Filter) ([]blog.Post, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	now := time.Now().UTC()
	matches := make([]blog.Post, 0)
	for _, p := range repo.query() {
		if p.Status != blog.StatusPublished || p.PublishedAt == nil || p.PublishedAt.After(now) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(p.Tags, f.Tags) {
			continue
		}
		matches = append(matches, p)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PublishedAt.After(*matches[j].PublishedAt) })
	total := len(matches)

	if f.Limit > 0 {
		start := 0
		if f.Page > 1 {
			start = (f.Page - 1) * f.Limit
		}
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matches = matches[start:end]
	}
	return matches, total, nil
}

func (repo *blogRepository) QueryPosts(_ context.Context) ([]blog.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *blogRepository) SavePost(_ context.Context, p blog.Post) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[p.ID]
	if !ok {
		return blog.Post{}, blog.ErrNotFound
	}
	// the view counter is bumped out of band; keep the stored value
	p.Views = orig.Views
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *blogRepository) DeletePost(_ context.Context, id primitive.ObjectID) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return blog.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *blogRepository) IncrementViews(_ context.Context, id primitive.ObjectID) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok {
		return blog.ErrNotFound
	}
	p.Views++
	return nil
}

func (repo *blogRepository) StatusStats(_ context.Context) ([]blog.StatusStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byStatus := make(map[string]int)
	for _, p := range repo.query() {
		byStatus[p.Status]++
	}
	stats := make([]blog.StatusStat, 0, len(byStatus))
	for status, count := range byStatus {
		stats = append(stats, blog.StatusStat{Status: status, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

func (repo *blogRepository) CategoryStats(_ context.Context) ([]blog.CategoryStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byCategory := make(map[string]int)
	for _, p := range repo.query() {
		byCategory[p.Category]++
	}
	stats := make([]blog.CategoryStat, 0, len(byCategory))
	for category, count := range byCategory {
		stats = append(stats, blog.CategoryStat{Category: category, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

func (repo *blogRepository) ViewStats(_ context.Context) (blog.ViewStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stat blog.ViewStat
	posts := repo.query()
	if len(posts) == 0 {
		return stat, nil
	}
	for _, p := range posts {
		stat.TotalViews += p.Views
	}
	stat.AvgViews = float64(stat.TotalViews) / float64(len(posts))
	return stat, nil
}

func (repo *blogRepository) CountPosts(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}

func hasAnyTag(tags, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}
