package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/message"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	pushsvc "github.com/trezcool/shule/services/push"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

var (
	testConf = &core.Config{
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type testEnv struct {
	app      Server
	usrRepo  user.Repository
	taskRepo task.Repository
	msgRepo  message.Repository
	blogRepo blog.Repository
	usrSvc   user.Service
	registry *pushsvc.Registry
}

func setup(t *testing.T) *testEnv {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	emailsvc.ClearSentMessages()

	usrRepo := inmemdb.NewUserRepository(db)
	taskRepo := inmemdb.NewTaskRepository(db)
	msgRepo := inmemdb.NewMessageRepository(db)
	blogRepo := inmemdb.NewBlogRepository(db)

	logger := logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	mailSvc := emailsvc.NewConsoleServiceMock(testConf)
	registry := pushsvc.NewRegistry(logger)

	usrSvc := user.NewServiceMock(usrRepo, mailSvc, testConf)
	taskSvc := task.NewService(taskRepo, usrSvc, mailSvc)
	msgSvc := message.NewService(msgRepo, usrSvc, mailSvc, registry)
	blogSvc := blog.NewService(blogRepo, usrSvc, mailSvc)

	app := NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:     testConf,
			Logger:   logger,
			UserSvc:  usrSvc,
			TaskSvc:  taskSvc,
			MsgSvc:   msgSvc,
			BlogSvc:  blogSvc,
			Registry: registry,
		},
	)
	return &testEnv{
		app:      app,
		usrRepo:  usrRepo,
		taskRepo: taskRepo,
		msgRepo:  msgRepo,
		blogRepo: blogRepo,
		usrSvc:   usrSvc,
		registry: registry,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func createUser(t *testing.T, repo user.Repository, name, email, pwd, role, category string, isActive bool) user.User {
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		Category:  category,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if role == user.RoleStudent {
		count, err := repo.CountStudents(context.Background())
		if err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
		usr.StudentID = user.FormatStudentID(count + 1)
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createTask(t *testing.T, repo task.Repository, title string, creator user.User, deadline time.Time, assignees ...user.User) task.Task {
	now := time.Now().UTC()
	tsk := task.Task{
		Title:        title,
		Description:  "do the thing",
		Category:     user.CategoryWebDev,
		Deadline:     deadline,
		Priority:     task.PriorityMedium,
		Requirements: []string{"a working demo"},
		CreatedBy:    creator.ID,
		Status:       task.StatusNotStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, a := range assignees {
		tsk.AssignedTo = append(tsk.AssignedTo, a.ID)
	}
	tsk, err := repo.CreateTask(context.Background(), tsk)
	if err != nil {
		t.Fatalf("createTask() failed: %v", err)
	}
	return tsk
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %s; wantData %s", rec.Body.String(), tt.wantData)
	}
}
