package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/user"
)

func Test_blogApi_create(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	body := []byte(`{
		"title": "Getting Started with Go",
		"content": "Install the toolchain and write a main package.",
		"meta_description": "A beginner's guide to Go",
		"category": "Web Development",
		"tags": ["go", "beginner"]
	}`)

	tests := []httpTest{
		{
			name:     "anonymous is rejected",
			body:     body,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "student cannot create",
			token:    studentToken,
			body:     body,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "missing meta description",
			token:    adminToken,
			body:     []byte(`{"title": "X", "content": "Y", "category": "Web Development"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "created as draft",
			token:    adminToken,
			body:     body,
			wantCode: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/blog", tt.body)
			if tt.token != "" {
				req, rec = newAuthRequest(http.MethodPost, "/v1/blog", tt.token, tt.body)
			}
			env.app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
			if rec.Code == http.StatusCreated {
				var p blog.Post
				if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
					t.Fatalf("unmarshalling post: %v", err)
				}
				if p.Status != blog.StatusDraft {
					t.Errorf("Status = %q; want %q", p.Status, blog.StatusDraft)
				}
				if p.Author != admin.ID {
					t.Errorf("Author = %v; want %v", p.Author, admin.ID)
				}
			}
		})
	}
}

func Test_blogApi_publicListing(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	adminToken := getToken(t, admin)

	create := func(title, category string, tags ...string) blog.Post {
		t.Helper()
		data, _ := json.Marshal(map[string]interface{}{
			"title":            title,
			"content":          "content of " + title,
			"meta_description": "about " + title,
			"category":         category,
			"tags":             tags,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/blog", adminToken, data)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		return p
	}
	publish := func(p blog.Post) {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPatch, "/v1/blog/"+p.ID.Hex()+"/publish", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("publish failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	}

	goPost := create("Go Primer", user.CategoryWebDev, "go")
	dsPost := create("Pandas Primer", user.CategoryDataScience, "python", "pandas")
	draft := create("Unfinished Draft", user.CategoryWebDev)
	publish(goPost)
	publish(dsPost)

	t.Run("drafts stay hidden", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/blog")
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var page PaginatedPosts
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling page: %v", err)
		}
		if page.Total != 2 {
			t.Fatalf("total = %d; want 2", page.Total)
		}
		for _, p := range page.Posts {
			if p.ID == draft.ID {
				t.Errorf("draft %q leaked into public listing", p.Title)
			}
		}
	})

	t.Run("filter by category and tag", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/blog?category=Data+Science&tags=pandas")
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var page PaginatedPosts
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("unmarshalling page: %v", err)
		}
		if page.Total != 1 || len(page.Posts) != 1 || page.Posts[0].ID != dsPost.ID {
			t.Errorf("page = %+v", page)
		}
	})

	t.Run("view counter bumps on read", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/blog/"+goPost.ID.Hex())
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Views != 1 {
			t.Errorf("Views = %d; want 1", p.Views)
		}
	})

	t.Run("edits keep the view counter", func(t *testing.T) {
		// goPost was loaded before the read above bumped its counter; the
		// stale edit must not roll it back
		req, rec := newAuthRequest(http.MethodPut, "/v1/blog/"+goPost.ID.Hex(), adminToken, []byte(`{"title": "Go Primer v2"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("update failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Title != "Go Primer v2" {
			t.Errorf("Title = %q", p.Title)
		}
		if p.Views != 1 {
			t.Errorf("Views = %d after edit; want 1", p.Views)
		}
	})

	t.Run("draft reads do not count views", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/blog/"+draft.ID.Hex())
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Views != 0 {
			t.Errorf("Views = %d; want 0", p.Views)
		}
	})
}

func Test_blogApi_commentsAndLifecycle(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	body := []byte(`{
		"title": "Commented Post",
		"content": "Some content.",
		"meta_description": "A post worth commenting on",
		"category": "Web Development"
	}`)
	req, rec := newAuthRequest(http.MethodPost, "/v1/blog", adminToken, body)
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var post blog.Post
	if err := json.Unmarshal(rec.Body.Bytes(), &post); err != nil {
		t.Fatalf("unmarshalling post: %v", err)
	}
	base := "/v1/blog/" + post.ID.Hex()

	t.Run("no comments on drafts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, base+"/comments", studentToken, []byte(`{"content": "first!"}`))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "cannot comment on an unpublished post"}),
		}, rec)
	})

	t.Run("student cannot publish another author's post", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, base+"/publish", studentToken)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only the author or an admin may modify this post"}),
		}, rec)
	})

	t.Run("author publishes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, base+"/publish", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Status != blog.StatusPublished || p.PublishedAt == nil {
			t.Errorf("post not published: %+v", p)
		}
	})

	t.Run("student comments once published", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, base+"/comments", studentToken, []byte(`{"content": "very helpful"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if len(p.Comments) != 1 || p.Comments[0].User != student.ID || p.Comments[0].Content != "very helpful" {
			t.Errorf("Comments = %+v", p.Comments)
		}
	})

	t.Run("author archives", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, base+"/archive", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Status != blog.StatusArchived {
			t.Errorf("Status = %q; want %q", p.Status, blog.StatusArchived)
		}
	})

	t.Run("update then delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, base, adminToken, []byte(`{"title": "Commented Post v2"}`))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("update failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var p blog.Post
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshalling post: %v", err)
		}
		if p.Title != "Commented Post v2" {
			t.Errorf("Title = %q", p.Title)
		}

		req, rec = newAuthRequest(http.MethodDelete, base, adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newRequest(http.MethodGet, base)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func Test_blogApi_stats(t *testing.T) {
	env := setup(t)

	admin := createUser(t, env.usrRepo, "Admin", "admin@test.cd", "LePassword?", user.RoleAdmin, "", true)
	student := createUser(t, env.usrRepo, "Student", "student@test.cd", "LePassword?", user.RoleStudent, user.CategoryWebDev, true)
	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	t.Run("student cannot view stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/blog/stats", studentToken)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})

	t.Run("empty stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/blog/stats", adminToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var stats blog.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("unmarshalling stats: %v", err)
		}
		if len(stats.StatusStats) != 0 || stats.ViewStats.TotalViews != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})
}
