package task

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// Task statuses; the wire values carry spaces as in the origin documents.
const (
	StatusNotStarted = "not started"
	StatusInProgress = "in progress"
	StatusSubmitted  = "submitted"
	StatusCompleted  = "completed"
	StatusRejected   = "rejected"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification types
const (
	NotifSubmission = "submission"
	NotifCompletion = "completion"
	NotifReview     = "task_review"
)

var (
	AllStatuses   = []string{StatusNotStarted, StatusInProgress, StatusSubmitted, StatusCompleted, StatusRejected}
	AllPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}
)

type (
	// Submission records a student's hand-in for a task.
	Submission struct {
		GithubLink  string    `json:"github_link" bson:"github_link"`
		SubmittedAt time.Time `json:"submitted_at" bson:"submitted_at"` // UTC
	}

	// Notification is an entry of a task's embedded append-only notification log.
	Notification struct {
		ID        string    `json:"id" bson:"id"`
		Type      string    `json:"type" bson:"type"`
		Message   string    `json:"message" bson:"message"`
		Timestamp time.Time `json:"timestamp" bson:"timestamp"` // UTC
		Read      bool      `json:"read" bson:"read"`
	}

	Task struct {
		ID            primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
		Title         string               `json:"title" bson:"title"`
		Description   string               `json:"description" bson:"description"`
		Category      string               `json:"category" bson:"category"`
		Deadline      time.Time            `json:"deadline" bson:"deadline"` // UTC
		Priority      string               `json:"priority" bson:"priority"`
		Requirements  []string             `json:"requirements" bson:"requirements"`
		AssignedTo    []primitive.ObjectID `json:"assigned_to" bson:"assigned_to"`
		CreatedBy     primitive.ObjectID   `json:"created_by" bson:"created_by"`
		Status        string               `json:"status" bson:"status"`
		Submission    *Submission          `json:"submission,omitempty" bson:"submission,omitempty"`
		Feedback      string               `json:"feedback,omitempty" bson:"feedback,omitempty"`
		Score         *int                 `json:"score,omitempty" bson:"score,omitempty"`
		ReviewedAt    *time.Time           `json:"reviewed_at,omitempty" bson:"reviewed_at,omitempty"`   // UTC
		CompletedAt   *time.Time           `json:"completed_at,omitempty" bson:"completed_at,omitempty"` // UTC
		CompletedBy   *primitive.ObjectID  `json:"completed_by,omitempty" bson:"completed_by,omitempty"`
		Notifications []Notification       `json:"notifications" bson:"notifications"`
		CreatedAt     time.Time            `json:"created_at" bson:"created_at"` // UTC
		UpdatedAt     time.Time            `json:"updated_at" bson:"updated_at"` // UTC
	}
)

func (t *Task) IsAssignee(uid primitive.ObjectID) bool {
	for _, id := range t.AssignedTo {
		if id == uid {
			return true
		}
	}
	return false
}

func (t *Task) IsCreator(uid primitive.ObjectID) bool { return t.CreatedBy == uid }

// appendNotification appends an entry to the embedded log; the log is persisted
// with the task in a single atomic document write.
func (t *Task) appendNotification(typ, msg string) {
	t.Notifications = append(t.Notifications, Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}

// CompletionTime is the timestamp used in on-time reporting: reviewedAt when
// present, completedAt otherwise. The second return is false when the task has
// neither and must be excluded from the on-time denominator.
func (t *Task) CompletionTime() (time.Time, bool) {
	if t.ReviewedAt != nil {
		return *t.ReviewedAt, true
	}
	if t.CompletedAt != nil {
		return *t.CompletedAt, true
	}
	return time.Time{}, false
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	Title        string    `json:"title" validate:"required"`
	Description  string    `json:"description" validate:"required"`
	Category     string    `json:"category" validate:"required,category"`
	Deadline     time.Time `json:"deadline" validate:"required"`
	Priority     string    `json:"priority" validate:"omitempty,priority"`
	Requirements []string  `json:"requirements" validate:"required,min=1,dive,required"`
	AssignedTo   []string  `json:"assigned_to" validate:"required,min=1,dive,required"`
}

func (nt *NewTask) Validate() error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
	return core.Validate.Struct(nt)
}

// Typed update commands; each validates and applies one mutation to a Task.
// The dynamic field-whitelist of old API clients is deliberately not supported.
type (
	UpdateCommand interface {
		Validate() error
		apply(t *Task)
	}

	Rename struct {
		Title string `json:"title" validate:"required"`
	}

	Redescribe struct {
		Description string `json:"description" validate:"required"`
	}

	Recategorize struct {
		Category string `json:"category" validate:"required,category"`
	}

	Reschedule struct {
		Deadline time.Time `json:"deadline" validate:"required"`
	}

	Reprioritize struct {
		Priority string `json:"priority" validate:"required,priority"`
	}

	Respecify struct {
		Requirements []string `json:"requirements" validate:"required,min=1,dive,required"`
	}

	// Reassign replaces the assignee set; the service checks every id
	// references an active student before applying.
	Reassign struct {
		AssignedTo []string `json:"assigned_to" validate:"required,min=1,dive,required"`

		ids []primitive.ObjectID
	}
)

func (c *Rename) Validate() error {
	c.Title = core.CleanString(c.Title)
	return core.Validate.Struct(c)
}
func (c *Rename) apply(t *Task) { t.Title = c.Title }

func (c *Redescribe) Validate() error {
	c.Description = core.CleanString(c.Description)
	return core.Validate.Struct(c)
}
func (c *Redescribe) apply(t *Task) { t.Description = c.Description }

func (c *Recategorize) Validate() error { return core.Validate.Struct(c) }
func (c *Recategorize) apply(t *Task)   { t.Category = c.Category }

func (c *Reschedule) Validate() error { return core.Validate.Struct(c) }
func (c *Reschedule) apply(t *Task)   { t.Deadline = c.Deadline }

func (c *Reprioritize) Validate() error { return core.Validate.Struct(c) }
func (c *Reprioritize) apply(t *Task)   { t.Priority = c.Priority }

func (c *Respecify) Validate() error { return core.Validate.Struct(c) }
func (c *Respecify) apply(t *Task)   { t.Requirements = c.Requirements }

func (c *Reassign) Validate() error { return core.Validate.Struct(c) }
func (c *Reassign) apply(t *Task)   { t.AssignedTo = c.ids }

// SubmitTask is a student's hand-in payload.
type SubmitTask struct {
	GithubLink string `json:"github_link" validate:"required,url"`
}

func (st *SubmitTask) Validate() error {
	st.GithubLink = core.CleanString(st.GithubLink)
	return core.Validate.Struct(st)
}

// ReviewTask is an admin's grading payload.
type ReviewTask struct {
	Status   string `json:"status" validate:"required,oneof=completed rejected"`
	Feedback string `json:"feedback"`
	Score    *int   `json:"score" validate:"omitempty,min=0,max=100"`
}

func (rt *ReviewTask) Validate() error {
	rt.Feedback = core.CleanString(rt.Feedback)
	return core.Validate.Struct(rt)
}

// Filter narrows task queries; zero values are ignored.
type Filter struct {
	Status     string
	Category   string
	AssignedTo primitive.ObjectID
	Page       int
	Limit      int
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

	// DeadlineStat buckets tasks as overdue, upcoming (within 7 days) or future.
	DeadlineStat struct {
		Bucket string `json:"bucket" bson:"_id"`
		Count  int    `json:"count" bson:"count"`
	}

	Stats struct {
		StatusStats   []StatusStat   `json:"status_stats"`
		CategoryStats []CategoryStat `json:"category_stats"`
		DeadlineStats []DeadlineStat `json:"deadline_stats"`
	}

	// Performance aggregates a student's track record.
	Performance struct {
		TotalTasks     int      `json:"total_tasks"`
		CompletedTasks int      `json:"completed_tasks"`
		CompletionRate float64  `json:"completion_rate"`
		AverageScore   *float64 `json:"average_score"` // nil when no task is graded
		OnTimeRate     *float64 `json:"on_time_rate"`  // nil when no task has a completion time
	}

	// FeedItem is one unread entry of the admin submission feed.
	FeedItem struct {
		NotificationID string     `json:"notification_id"`
		TaskID         string     `json:"task_id"`
		TaskTitle      string     `json:"task_title"`
		Message        string     `json:"message"`
		Timestamp      time.Time  `json:"timestamp"`
		Status         string     `json:"status"`
		CompletedAt    *time.Time `json:"completed_at,omitempty"`
	}

	// Export is the admin data dump: every task plus every student profile.
	Export struct {
		Tasks    []Task      `json:"tasks"`
		Students []user.User `json:"students"`
	}
)
