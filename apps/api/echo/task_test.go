package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
)

func Test_taskApi_create(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	inactive := createUser(t, env.usrRepo, "Inactive", "inactive@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, false)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339)
	body := func(assignees ...user.User) []byte {
		ids := make([]string, 0, len(assignees))
		for _, a := range assignees {
			ids = append(ids, a.ID.Hex())
		}
		data, _ := json.Marshal(map[string]interface{}{
			"title":        "Portfolio site",
			"description":  "Build a portfolio site",
			"category":     user.CategoryWebDev,
			"deadline":     deadline,
			"requirements": []string{"responsive layout"},
			"assigned_to":  ids,
		})
		return data
	}

	tests := []httpTest{
		{
			name:     "student cannot create",
			token:    studentToken,
			body:     body(student),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing fields",
			token:    adminToken,
			body:     []byte(`{"title": "X"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "inactive assignee rejected",
			token:    adminToken,
			body:     body(inactive),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "created with default priority",
			token:    adminToken,
			body:     body(student),
			wantCode: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/tasks", tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if rec.Code == http.StatusCreated {
				var created task.Task
				if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
					t.Fatalf("unmarshalling task: %v", err)
				}
				if created.Priority != task.PriorityMedium {
					t.Errorf("Priority = %q; want %q", created.Priority, task.PriorityMedium)
				}
				if created.Status != task.StatusNotStarted {
					t.Errorf("Status = %q; want %q", created.Status, task.StatusNotStarted)
				}
			}
		})
	}
}

func Test_taskApi_lifecycle(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	other := createUser(t, env.usrRepo, "Other", "other@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)
	otherToken := getToken(t, other)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC()
	tsk := createTask(t, env.taskRepo, "Portfolio site", admin, deadline, student)
	base := "/v1/tasks/" + tsk.ID.Hex()

	tests := []httpTest{
		{
			name:     "non-assignee cannot view",
			method:   http.MethodGet,
			path:     base,
			token:    otherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "assignee views task",
			method:   http.MethodGet,
			path:     base,
			token:    studentToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "admin views task",
			method:   http.MethodGet,
			path:     base,
			token:    adminToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "non-assignee cannot start",
			method:   http.MethodPatch,
			path:     base + "/start",
			token:    otherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "assignee starts",
			method:   http.MethodPatch,
			path:     base + "/start",
			token:    studentToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "start is not repeatable",
			method:   http.MethodPatch,
			path:     base + "/start",
			token:    studentToken,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "task has already been started"}),
		},
		{
			name:     "submit requires a github link",
			method:   http.MethodPost,
			path:     base + "/submit",
			token:    studentToken,
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "assignee submits",
			method:   http.MethodPost,
			path:     base + "/submit",
			token:    studentToken,
			body:     []byte(`{"github_link": "https://github.com/student/portfolio"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "resubmission allowed before completion",
			method:   http.MethodPost,
			path:     base + "/submit",
			token:    studentToken,
			body:     []byte(`{"github_link": "https://github.com/student/portfolio-v2"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "student cannot review",
			method:   http.MethodPost,
			path:     base + "/review",
			token:    studentToken,
			body:     []byte(`{"status": "completed", "score": 90}`),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "score out of range",
			method:   http.MethodPost,
			path:     base + "/review",
			token:    adminToken,
			body:     []byte(`{"status": "completed", "score": 101}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "admin reviews",
			method:   http.MethodPost,
			path:     base + "/review",
			token:    adminToken,
			body:     []byte(`{"status": "completed", "feedback": "well done", "score": 90}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "no resubmission after completion",
			method:   http.MethodPost,
			path:     base + "/submit",
			token:    studentToken,
			body:     []byte(`{"github_link": "https://github.com/student/portfolio-v3"}`),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "task is not in a submittable state"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}
}

func Test_taskApi_update(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC()
	tsk := createTask(t, env.taskRepo, "Portfolio site", admin, deadline, student)
	base := "/v1/tasks/" + tsk.ID.Hex()

	tests := []httpTest{
		{
			name:     "empty patch",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "no fields to update"}),
		},
		{
			name:     "invalid priority",
			body:     []byte(`{"priority": "urgent"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "rename and reprioritize",
			body:     []byte(`{"title": "Portfolio v2", "priority": "high"}`),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPatch, base, adminToken, tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
			if rec.Code == http.StatusOK {
				var updated task.Task
				if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
					t.Fatalf("unmarshalling task: %v", err)
				}
				if updated.Title != "Portfolio v2" || updated.Priority != task.PriorityHigh {
					t.Errorf("update not applied: %+v", updated)
				}
			}
		})
	}

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, base, adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, base, adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_taskApi_listsAndStats(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	other := createUser(t, env.usrRepo, "Other", "other@test.cd", "LePassword?", user.RoleStudent, user.CategoryDataScience, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC()
	createTask(t, env.taskRepo, "Task A", admin, deadline, student)
	createTask(t, env.taskRepo, "Task B", admin, deadline, student, other)
	createTask(t, env.taskRepo, "Task C", admin, deadline, other)

	t.Run("admin list with pagination", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks?page=1&limit=2", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var page PaginatedTasks
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling page: %v", err)
		}
		if len(page.Tasks) != 2 || page.Total != 3 {
			t.Errorf("got %d tasks, total %d; want 2, 3", len(page.Tasks), page.Total)
		}
	})

	t.Run("student list is scoped", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks/mine", studentToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var page PaginatedTasks
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling page: %v", err)
		}
		if page.Total != 2 {
			t.Errorf("total = %d; want 2", page.Total)
		}
		for _, tsk := range page.Tasks {
			if !tsk.IsAssignee(student.ID) {
				t.Errorf("task %q not assigned to student", tsk.Title)
			}
		}
	})

	t.Run("student cannot list all", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks", studentToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks/stats", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var stats task.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("unmarshalling stats: %v", err)
		}
		if len(stats.StatusStats) != 1 || stats.StatusStats[0].Count != 3 {
			t.Errorf("StatusStats = %+v", stats.StatusStats)
		}
	})

	t.Run("export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks/export", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var export task.Export
		if err := json.Unmarshal(rec.Body.Bytes(), &export); err != nil {
			t.Fatalf("unmarshalling export: %v", err)
		}
		if len(export.Tasks) != 3 || len(export.Students) != 2 {
			t.Errorf("export = %d tasks, %d students; want 3, 2", len(export.Tasks), len(export.Students))
		}
	})
}

func Test_taskApi_notificationFeed(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	deadline := time.Now().Add(7 * 24 * time.Hour).UTC()
	tsk := createTask(t, env.taskRepo, "Portfolio site", admin, deadline, student)

	// submit over HTTP so the notification log fills up
	req, rec := newAuthRequest(http.MethodPost, "/v1/tasks/"+tsk.ID.Hex()+"/submit", studentToken,
		[]byte(`{"github_link": "https://github.com/student/portfolio"}`))
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	t.Run("unread feed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tasks/notifications", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var feed []task.FeedItem
		if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
			t.Fatalf("unmarshalling feed: %v", err)
		}
		if len(feed) != 1 || feed[0].TaskID != tsk.ID.Hex() {
			t.Fatalf("feed = %+v", feed)
		}
	})

	t.Run("mark read empties the feed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/tasks/"+tsk.ID.Hex()+"/notifications/read", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/tasks/notifications", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if body := rec.Body.String(); body != "[]\n" && body != "[]" {
			t.Errorf("feed not empty: %s", body)
		}
	})
}
