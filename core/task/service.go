package task

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
	ErrNotFound = errors.New("task not found")
)

type (
	Repository interface {
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, id primitive.ObjectID) (Task, error)
		// QueryTasks returns the matching page plus the unpaginated total.
		QueryTasks(ctx context.Context, f Filter) ([]Task, int, error)
		// SaveTask persists the whole task document in a single atomic write.
		SaveTask(ctx context.Context, t Task) (Task, error)
		DeleteTask(ctx context.Context, id primitive.ObjectID) error
		// TasksWithUnreadNotifications returns tasks carrying at least one
		// unread entry of the given type in their embedded log.
		TasksWithUnreadNotifications(ctx context.Context, typ string) ([]Task, error)
		StatusStats(ctx context.Context) ([]StatusStat, error)
		CategoryStats(ctx context.Context) ([]CategoryStat, error)
		DeadlineStats(ctx context.Context, now time.Time) ([]DeadlineStat, error)
		CountTasks(ctx context.Context) (int, error)
	}

	Service interface {
		Create(ctx context.Context, nt NewTask, creator user.User) (Task, error)
		Get(ctx context.Context, id string, actor user.User) (Task, error)
		Query(ctx context.Context, f Filter) ([]Task, int, error)
		StudentTasks(ctx context.Context, studentID string, f Filter) ([]Task, int, error)
		Update(ctx context.Context, id string, cmds ...UpdateCommand) (Task, error)
		Delete(ctx context.Context, id string) error

		// lifecycle transitions
		Start(ctx context.Context, id string, actor user.User) (Task, error)
		Submit(ctx context.Context, id string, actor user.User, st SubmitTask) (Task, error)
		Complete(ctx context.Context, id string, actor user.User) (Task, error)
		Review(ctx context.Context, id string, actor user.User, rt ReviewTask) (Task, error)

		// reporting
		UnreadSubmissionFeed(ctx context.Context) ([]FeedItem, error)
		MarkNotificationsRead(ctx context.Context, taskID string) (Task, error)
		Stats(ctx context.Context) (Stats, error)
		StudentPerformance(ctx context.Context, studentID string) (Performance, error)
		ExportData(ctx context.Context) (Export, error)
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

func (svc *service) Create(ctx context.Context, nt NewTask, creator user.User) (Task, error) {
	if !creator.IsAdmin() {
		return Task{}, core.NewForbiddenError("only admins may create tasks")
	}

	assignees, err := svc.activeStudents(ctx, nt.AssignedTo)
	if err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	t := Task{
		Title:        nt.Title,
		Description:  nt.Description,
		Category:     nt.Category,
		Deadline:     nt.Deadline.UTC(),
		Priority:     nt.Priority,
		Requirements: nt.Requirements,
		CreatedBy:    creator.ID,
		Status:       StatusNotStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, s := range assignees {
		t.AssignedTo = append(t.AssignedTo, s.ID)
	}

	t, err = svc.repo.CreateTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	go svc.sendAssignmentMail(t, assignees)
	return t, nil
}

func (svc *service) Get(ctx context.Context, id string, actor user.User) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if actor.IsStudent() && !t.IsAssignee(actor.ID) {
		return Task{}, core.NewForbiddenError("you are not assigned to this task")
	}
	return t, nil
}

func (svc *service) Query(ctx context.Context, f Filter) ([]Task, int, error) {
	return svc.repo.QueryTasks(ctx, f)
}

func (svc *service) StudentTasks(ctx context.Context, studentID string, f Filter) ([]Task, int, error) {
	oid, err := primitive.ObjectIDFromHex(studentID)
	if err != nil {
		return nil, 0, user.ErrNotFound
	}
	f.AssignedTo = oid
	return svc.repo.QueryTasks(ctx, f)
}

func (svc *service) Update(ctx context.Context, id string, cmds ...UpdateCommand) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	for _, cmd := range cmds {
		if err = cmd.Validate(); err != nil {
			return Task{}, err
		}
		if ra, ok := cmd.(*Reassign); ok {
			assignees, err := svc.activeStudents(ctx, ra.AssignedTo)
			if err != nil {
				return Task{}, err
			}
			ra.ids = ra.ids[:0]
			for _, s := range assignees {
				ra.ids = append(ra.ids, s.ID)
			}
		}
		cmd.apply(&t)
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.SaveTask(ctx, t)
}

// Delete removes the task document; the embedded notification log goes with it.
func (svc *service) Delete(ctx context.Context, id string) error {
	t, err := svc.get(ctx, id)
	if err != nil {
		return err
	}
	return svc.repo.DeleteTask(ctx, t.ID)
}

// lifecycle transitions

func (svc *service) Start(ctx context.Context, id string, actor user.User) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !t.IsAssignee(actor.ID) {
		return Task{}, core.NewForbiddenError("you are not assigned to this task")
	}
	if t.Status != StatusNotStarted {
		return Task{}, core.NewInvalidTransitionError("task has already been started")
	}

	t.Status = StatusInProgress
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.SaveTask(ctx, t)
}

// Submit attaches the hand-in and moves the task to "submitted". Resubmission
// is allowed from "submitted" and "rejected" but never from "completed".
func (svc *service) Submit(ctx context.Context, id string, actor user.User, st SubmitTask) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !t.IsAssignee(actor.ID) {
		return Task{}, core.NewForbiddenError("you are not assigned to this task")
	}
	if t.Status == StatusCompleted {
		return Task{}, core.NewInvalidTransitionError("task is not in a submittable state")
	}

	now := time.Now().UTC()
	t.Submission = &Submission{GithubLink: st.GithubLink, SubmittedAt: now}
	t.Status = StatusSubmitted
	t.appendNotification(NotifSubmission,
		fmt.Sprintf("Task %q has been submitted by %s with GitHub link: %s", t.Title, actor.Name, st.GithubLink))
	t.UpdatedAt = now

	t, err = svc.repo.SaveTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	go svc.sendSubmissionMail(context.Background(), t, actor)
	return t, nil
}

func (svc *service) Complete(ctx context.Context, id string, actor user.User) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !t.IsAssignee(actor.ID) {
		return Task{}, core.NewForbiddenError("you are not assigned to this task")
	}
	if t.Status == StatusCompleted {
		return Task{}, core.NewInvalidTransitionError("task is already completed")
	}

	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.CompletedBy = &actor.ID
	t.appendNotification(NotifCompletion,
		fmt.Sprintf("Task %q has been marked as complete by %s", t.Title, actor.Name))
	t.UpdatedAt = now
	return svc.repo.SaveTask(ctx, t)
}

// Review grades a submission. Repeated reviews overwrite each other; the last
// write wins, there is no optimistic-concurrency token on the task document.
func (svc *service) Review(ctx context.Context, id string, actor user.User, rt ReviewTask) (Task, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !actor.IsAdmin() {
		return Task{}, core.NewForbiddenError("only admins may review tasks")
	}

	now := time.Now().UTC()
	t.Status = rt.Status
	t.Feedback = rt.Feedback
	if rt.Score != nil {
		t.Score = rt.Score
	}
	t.ReviewedAt = &now
	t.appendNotification(NotifReview, fmt.Sprintf("Your task %q has been %s", t.Title, rt.Status))
	t.UpdatedAt = now

	t, err = svc.repo.SaveTask(ctx, t)
	if err != nil {
		return Task{}, err
	}
	go svc.sendReviewMail(context.Background(), t, rt)
	return t, nil
}

// reporting

func (svc *service) UnreadSubmissionFeed(ctx context.Context) ([]FeedItem, error) {
	tasks, err := svc.repo.TasksWithUnreadNotifications(ctx, NotifSubmission)
	if err != nil {
		return nil, err
	}
	feed := make([]FeedItem, 0)
	for _, t := range tasks {
		for _, n := range t.Notifications {
			if n.Type != NotifSubmission || n.Read {
				continue
			}
			feed = append(feed, FeedItem{
				NotificationID: n.ID,
				TaskID:         t.ID.Hex(),
				TaskTitle:      t.Title,
				Message:        n.Message,
				Timestamp:      n.Timestamp,
				Status:         t.Status,
				CompletedAt:    t.CompletedAt,
			})
		}
	}
	return feed, nil
}

func (svc *service) MarkNotificationsRead(ctx context.Context, taskID string) (Task, error) {
	t, err := svc.get(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	for i := range t.Notifications {
		t.Notifications[i].Read = true
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.SaveTask(ctx, t)
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
	deadlineStats, err := svc.repo.DeadlineStats(ctx, time.Now().UTC())
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		StatusStats:   statusStats,
		CategoryStats: categoryStats,
		DeadlineStats: deadlineStats,
	}, nil
}

func (svc *service) StudentPerformance(ctx context.Context, studentID string) (Performance, error) {
	tasks, _, err := svc.StudentTasks(ctx, studentID, Filter{})
	if err != nil {
		return Performance{}, err
	}
	return ComputePerformance(tasks), nil
}

func (svc *service) ExportData(ctx context.Context) (Export, error) {
	tasks, _, err := svc.repo.QueryTasks(ctx, Filter{})
	if err != nil {
		return Export{}, err
	}
	students, err := svc.usrSvc.QueryStudents(ctx)
	if err != nil {
		return Export{}, err
	}
	return Export{Tasks: tasks, Students: students}, nil
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountTasks(ctx)
}

// helpers

func (svc *service) get(ctx context.Context, id string) (Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Task{}, ErrNotFound
	}
	return svc.repo.GetTask(ctx, oid)
}

// activeStudents resolves the given ids and checks that every one of them
// references an active student.
func (svc *service) activeStudents(ctx context.Context, ids []string) ([]user.User, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, core.NewValidationError(
				errors.New("one or more assigned students are invalid"),
				core.FieldError{Field: "assigned_to", Error: "one or more assigned students are invalid"},
			)
		}
		oids = append(oids, oid)
	}
	students, err := svc.usrSvc.ActiveStudents(ctx, oids)
	if err != nil {
		return nil, err
	}
	if len(students) != len(oids) {
		return nil, core.NewValidationError(
			errors.New("one or more assigned students are invalid"),
			core.FieldError{Field: "assigned_to", Error: "one or more assigned students are invalid"},
		)
	}
	return students, nil
}

// emails

func (svc *service) sendAssignmentMail(t Task, assignees []user.User) {
	msgs := make([]*core.EmailMessage, 0, len(assignees))
	for _, s := range assignees {
		msgs = append(msgs, &core.EmailMessage{
			To:      []mail.Address{{Name: s.Name, Address: s.Email}},
			Subject: "New Task Assigned",
			BodyStr: fmt.Sprintf("You have been assigned a new task: %s", t.Title),
		})
	}
	svc.mailSvc.SendMessages(msgs...)
}

func (svc *service) sendSubmissionMail(ctx context.Context, t Task, student user.User) {
	admin, err := svc.usrSvc.GetAdmin(ctx)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: admin.Name, Address: admin.Email}},
		Subject: "New Task Submission",
		BodyStr: fmt.Sprintf("Student %s has submitted task: %s", student.Name, t.Title),
	})
}

func (svc *service) sendReviewMail(ctx context.Context, t Task, rt ReviewTask) {
	assignees, err := svc.usrSvc.ActiveStudents(ctx, t.AssignedTo)
	if err != nil {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(assignees))
	for _, s := range assignees {
		msgs = append(msgs, &core.EmailMessage{
			To:      []mail.Address{{Name: s.Name, Address: s.Email}},
			Subject: "Task Submission Reviewed",
			BodyStr: fmt.Sprintf("Your task %q has been %s.", t.Title, rt.Status),
		})
	}
	svc.mailSvc.SendMessages(msgs...)
}
