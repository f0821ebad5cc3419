package mongodb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	col *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{col: db.Collection(usersCollection)}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email, studentID string, excludedUsers ...user.User) error {
	exclIDs := make([]primitive.ObjectID, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}
	notExcluded := bson.M{"$nin": exclIDs}

	count, err := repo.col.CountDocuments(ctx, bson.M{"email": email, "_id": notExcluded})
	if err != nil {
		return errors.Wrap(err, "counting users by email")
	}
	if count > 0 {
		return user.ErrEmailExists
	}

	if studentID != "" {
		count, err = repo.col.CountDocuments(ctx, bson.M{"student_id": studentID, "_id": notExcluded})
		if err != nil {
			return errors.Wrap(err, "counting users by student number")
		}
		if count > 0 {
			return user.ErrStudentIDExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.col.InsertOne(ctx, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = res.InsertedID.(primitive.ObjectID)
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var query bson.M
	switch {
	case !filter.ID.IsZero():
		query = bson.M{"_id": filter.ID}
	case filter.Email != "":
		query = bson.M{"email": filter.Email}
	case filter.EmailOrStudentID != "":
		// student numbers are stored uppercase while the lookup key is
		// normalized to lowercase
		query = bson.M{"$or": bson.A{
			bson.M{"email": filter.EmailOrStudentID},
			bson.M{"student_id": strings.ToUpper(filter.EmailOrStudentID)},
		}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	if err := repo.col.FindOne(ctx, query).Decode(&usr); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) GetAdmin(ctx context.Context) (user.User, error) {
	var usr user.User
	if err := repo.col.FindOne(ctx, bson.M{"role": user.RoleAdmin}).Decode(&usr); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting admin")
	}
	return usr, nil
}

func (repo *userRepository) QueryStudents(ctx context.Context) ([]user.User, error) {
	return repo.query(ctx, bson.M{"role": user.RoleStudent},
		options.Find().SetSort(bson.D{{Key: "student_id", Value: 1}}))
}

func (repo *userRepository) QueryUsers(ctx context.Context, ids []primitive.ObjectID) ([]user.User, error) {
	return repo.query(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

func (repo *userRepository) FilterActiveStudents(ctx context.Context, ids []primitive.ObjectID) ([]user.User, error) {
	return repo.query(ctx, bson.M{
		"_id":       bson.M{"$in": ids},
		"role":      user.RoleStudent,
		"is_active": true,
	}, options.Find())
}

func (repo *userRepository) CountStudents(ctx context.Context) (int, error) {
	count, err := repo.col.CountDocuments(ctx, bson.M{"role": user.RoleStudent})
	if err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return int(count), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = *isActive
	}
	res, err := repo.col.ReplaceOne(ctx, bson.M{"_id": usr.ID}, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) RoleStats(ctx context.Context) ([]user.RoleStat, error) {
	cursor, err := repo.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":    "$role",
			"count":  bson.M{"$sum": 1},
			"active": bson.M{"$sum": bson.M{"$cond": bson.A{"$is_active", 1, 0}}},
		}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "aggregating role stats")
	}
	var stats []user.RoleStat
	if err = cursor.All(ctx, &stats); err != nil {
		return nil, errors.Wrap(err, "decoding role stats")
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Role < stats[j].Role })
	return stats, nil
}

func (repo *userRepository) CountUsers(ctx context.Context) (total, active int, err error) {
	t, err := repo.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting users")
	}
	a, err := repo.col.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting active users")
	}
	return int(t), int(a), nil
}

func (repo *userRepository) query(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]user.User, error) {
	cursor, err := repo.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0)
	if err = cursor.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	return users, nil
}
