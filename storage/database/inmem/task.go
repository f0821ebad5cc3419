package inmemdb

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core/task"
)

const upcomingWindow = 7 * 24 * time.Hour

type taskRepository struct {
	db *taskTable
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{db: db.task}
}

func (repo *taskRepository) query() []task.Task {
	tasks := make([]task.Task, 0, len(repo.db.table))
	for _, t := range repo.db.table {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = primitive.NewObjectID()
	repo.db.table[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) GetTask(_ context.Context, id primitive.ObjectID) (task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return *t, nil
	}
	return task.Task{}, task.ErrNotFound
}

func (repo *taskRepository) QueryTasks(_ context.Context, f task.Filter) ([]task.Task, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matches := make([]task.Task, 0)
	for _, t := range repo.query() {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if !f.AssignedTo.IsZero() && !t.IsAssignee(f.AssignedTo) {
			continue
		}
		matches = append(matches, t)
	}
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

func (repo *taskRepository) SaveTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[t.ID]; !ok {
		return task.Task{}, task.ErrNotFound
	}
	repo.db.table[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) DeleteTask(_ context.Context, id primitive.ObjectID) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return task.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *taskRepository) TasksWithUnreadNotifications(_ context.Context, typ string) ([]task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tasks := make([]task.Task, 0)
	for _, t := range repo.query() {
		for _, n := range t.Notifications {
			if n.Type == typ && !n.Read {
				tasks = append(tasks, t)
				break
			}
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt) })
	return tasks, nil
}

func (repo *taskRepository) StatusStats(_ context.Context) ([]task.StatusStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byStatus := make(map[string]int)
	for _, t := range repo.query() {
		byStatus[t.Status]++
	}
	stats := make([]task.StatusStat, 0, len(byStatus))
	for status, count := range byStatus {
		stats = append(stats, task.StatusStat{Status: status, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

func (repo *taskRepository) CategoryStats(_ context.Context) ([]task.CategoryStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byCategory := make(map[string]int)
	for _, t := range repo.query() {
		byCategory[t.Category]++
	}
	stats := make([]task.CategoryStat, 0, len(byCategory))
	for category, count := range byCategory {
		stats = append(stats, task.CategoryStat{Category: category, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

func (repo *taskRepository) DeadlineStats(_ context.Context, now time.Time) ([]task.DeadlineStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byBucket := make(map[string]int)
	for _, t := range repo.query() {
		switch {
		case t.Deadline.Before(now):
			byBucket["overdue"]++
		case t.Deadline.Before(now.Add(upcomingWindow)):
			byBucket["upcoming"]++
		default:
			byBucket["future"]++
		}
	}
	stats := make([]task.DeadlineStat, 0, len(byBucket))
	for bucket, count := range byBucket {
		stats = append(stats, task.DeadlineStat{Bucket: bucket, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Bucket < stats[j].Bucket })
	return stats, nil
}

func (repo *taskRepository) CountTasks(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table), nil
}
