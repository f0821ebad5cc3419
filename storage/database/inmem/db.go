// Package inmemdb provides map-backed repositories for tests and local
// development.
package inmemdb

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/message"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
)

type (
	DB struct {
		user    *userTable
		task    *taskTable
		message *messageTable
		blog    *blogTable
	}

	userTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*user.User
	}

	taskTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*task.Task
	}

	messageTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*message.Message
	}

	blogTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*blog.Post
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:    &userTable{table: make(map[primitive.ObjectID]*user.User)},
		task:    &taskTable{table: make(map[primitive.ObjectID]*task.Task)},
		message: &messageTable{table: make(map[primitive.ObjectID]*message.Message)},
		blog:    &blogTable{table: make(map[primitive.ObjectID]*blog.Post)},
	}
	return db, nil
}
