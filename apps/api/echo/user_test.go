package echoapi

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/trezcool/shule/core/user"
)

func Test_userApi_login(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	createUser(t, env.usrRepo, "Gone", "gone@test.cd", "LePassword?", user.RoleStudent, user.CategoryDataScience, false)

	tests := []httpTest{
		{
			name:     "empty credentials",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name:     "unknown user",
			body:     []byte(`{"email": "nobody@test.cd", "password": "LePassword?"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     []byte(`{"email": "admin@test.cd", "password": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     []byte(`{"email": "gone@test.cd", "password": "LePassword?"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "login by email",
			body:     []byte(`{"email": "admin@test.cd", "password": "LePassword?"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "login by student number",
			body:     []byte(`{"email": "` + strings.ToLower(student.StudentID) + `", "password": "LePassword?"}`),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else if !strings.Contains(rec.Body.String(), "token") {
				t.Errorf("failed! no token in body %s", rec.Body.String())
			}
		})
	}

	// successful login stamps lastLogin
	usr, err := env.usrSvc.GetByEmail(context.Background(), admin.Email)
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if usr.LastLogin.IsZero() {
		t.Errorf("lastLogin not set on login")
	}
}

func Test_userApi_register(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	newStudent := []byte(`{
		"name": "New Student",
		"email": "new@test.cd",
		"password": "S3cur3Pass!",
		"password_confirm": "S3cur3Pass!",
		"category": "Web Development"
	}`)

	tests := []httpTest{
		{
			name:     "anonymous cannot register",
			body:     newStudent,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "student cannot register",
			token:    studentToken,
			body:     newStudent,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "missing category for student",
			token:    adminToken,
			body:     []byte(`{"name": "X", "email": "x@test.cd", "password": "S3cur3Pass!", "password_confirm": "S3cur3Pass!"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"category": "this field is required for students"}),
		},
		{
			name:     "admin registers student",
			token:    adminToken,
			body:     newStudent,
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate email",
			token:    adminToken,
			body:     newStudent,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}

	// a generated student number was assigned
	usr, err := env.usrSvc.GetByEmail(context.Background(), "new@test.cd")
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if usr.StudentID != user.FormatStudentID(2) {
		t.Errorf("StudentID = %q; want %q", usr.StudentID, user.FormatStudentID(2))
	}
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)

	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	token := getToken(t, student)

	t.Run("profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", token)
		env.app.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}
		checkCodeAndData(t, tt, rec)
		if strings.Contains(rec.Body.String(), "password_hash") {
			t.Errorf("password hash leaked in %s", rec.Body.String())
		}
	})

	t.Run("profile update", func(t *testing.T) {
		body := []byte(`{"github_profile": "https://github.com/student"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, body)
		env.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		usr, err := env.usrSvc.GetByID(context.Background(), student.ID.Hex())
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if usr.GithubProfile != "https://github.com/student" {
			t.Errorf("GithubProfile = %q", usr.GithubProfile)
		}
	})

	t.Run("invalid profile url", func(t *testing.T) {
		body := []byte(`{"avatar": "not a url"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, body)
		env.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_studentApi_status(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	tests := []httpTest{
		{
			name:     "student cannot toggle status",
			path:     "/v1/students/" + student.ID.Hex() + "/status",
			token:    studentToken,
			body:     []byte(`{"is_active": false}`),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing flag",
			path:     "/v1/students/" + student.ID.Hex() + "/status",
			token:    adminToken,
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "admin is not a student",
			path:     "/v1/students/" + admin.ID.Hex() + "/status",
			token:    adminToken,
			body:     []byte(`{"is_active": false}`),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "deactivate",
			path:     "/v1/students/" + student.ID.Hex() + "/status",
			token:    adminToken,
			body:     []byte(`{"is_active": false}`),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPatch, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	usr, err := env.usrSvc.GetByID(context.Background(), student.ID.Hex())
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if usr.IsActive {
		t.Errorf("student still active after deactivation")
	}
}
