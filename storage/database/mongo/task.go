package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/task"
)

const upcomingWindow = 7 * 24 * time.Hour

type taskRepository struct {
	col *mongo.Collection
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *mongo.Database) task.Repository {
	return &taskRepository{col: db.Collection(tasksCollection)}
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	res, err := repo.col.InsertOne(ctx, t)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	t.ID = res.InsertedID.(primitive.ObjectID)
	return t, nil
}

func (repo *taskRepository) GetTask(ctx context.Context, id primitive.ObjectID) (task.Task, error) {
	var t task.Task
	if err := repo.col.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if err == mongo.ErrNoDocuments {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, errors.Wrap(err, "getting task")
	}
	return t, nil
}

func (repo *taskRepository) QueryTasks(ctx context.Context, f task.Filter) ([]task.Task, int, error) {
	query := bson.M{}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if !f.AssignedTo.IsZero() {
		query["assigned_to"] = f.AssignedTo
	}

	total, err := repo.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting tasks")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
		if f.Page > 1 {
			opts.SetSkip(int64((f.Page - 1) * f.Limit))
		}
	}

	cursor, err := repo.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]task.Task, 0)
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, 0, errors.Wrap(err, "decoding tasks")
	}
	return tasks, int(total), nil
}

func (repo *taskRepository) SaveTask(ctx context.Context, t task.Task) (task.Task, error) {
	res, err := repo.col.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "saving task")
	}
	if res.MatchedCount == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo *taskRepository) DeleteTask(ctx context.Context, id primitive.ObjectID) error {
	res, err := repo.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	if res.DeletedCount == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (repo *taskRepository) TasksWithUnreadNotifications(ctx context.Context, typ string) ([]task.Task, error) {
	cursor, err := repo.col.Find(ctx, bson.M{
		"notifications": bson.M{"$elemMatch": bson.M{"type": typ, "read": false}},
	}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks with unread notifications")
	}
	tasks := make([]task.Task, 0)
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, errors.Wrap(err, "decoding tasks")
	}
	return tasks, nil
}

func (repo *taskRepository) StatusStats(ctx context.Context) ([]task.StatusStat, error) {
	var stats []task.StatusStat
	if err := repo.groupCount(ctx, "$status", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (repo *taskRepository) CategoryStats(ctx context.Context) ([]task.CategoryStat, error) {
	var stats []task.CategoryStat
	if err := repo.groupCount(ctx, "$category", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// DeadlineStats buckets tasks as overdue, upcoming (within 7 days of now) or
// future.
func (repo *taskRepository) DeadlineStats(ctx context.Context, now time.Time) ([]task.DeadlineStat, error) {
	cursor, err := repo.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$lt": bson.A{"$deadline", now}},
				"overdue",
				bson.M{"$cond": bson.A{
					bson.M{"$lt": bson.A{"$deadline", now.Add(upcomingWindow)}},
					"upcoming",
					"future",
				}},
			}},
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "aggregating deadline stats")
	}
	var stats []task.DeadlineStat
	if err = cursor.All(ctx, &stats); err != nil {
		return nil, errors.Wrap(err, "decoding deadline stats")
	}
	return stats, nil
}

func (repo *taskRepository) CountTasks(ctx context.Context) (int, error) {
	count, err := repo.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "counting tasks")
	}
	return int(count), nil
}

func (repo *taskRepository) groupCount(ctx context.Context, field string, out interface{}) error {
	cursor, err := repo.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return errors.Wrapf(err, "aggregating tasks by %s", field)
	}
	if err = cursor.All(ctx, out); err != nil {
		return errors.Wrap(err, "decoding task stats")
	}
	return nil
}
