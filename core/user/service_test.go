package user

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
)

type repoMock struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]User
}

func newRepoMock() *repoMock {
	return &repoMock{users: make(map[primitive.ObjectID]User)}
}

func (r *repoMock) CheckEmailUniqueness(_ context.Context, email, studentID string, excl ...User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	excluded := make(map[primitive.ObjectID]struct{}, len(excl))
	for _, usr := range excl {
		excluded[usr.ID] = struct{}{}
	}
	for _, usr := range r.users {
		if _, ok := excluded[usr.ID]; ok {
			continue
		}
		if strings.EqualFold(usr.Email, email) {
			return ErrEmailExists
		}
		if studentID != "" && strings.EqualFold(usr.StudentID, studentID) {
			return ErrStudentIDExists
		}
	}
	return nil
}

func (r *repoMock) CreateUser(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	usr.ID = primitive.NewObjectID()
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *repoMock) GetUser(_ context.Context, f GetFilter) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		switch {
		case !f.ID.IsZero():
			if usr.ID == f.ID {
				return usr, nil
			}
		case f.Email != "":
			if strings.EqualFold(usr.Email, f.Email) {
				return usr, nil
			}
		case f.EmailOrStudentID != "":
			if strings.EqualFold(usr.Email, f.EmailOrStudentID) || strings.EqualFold(usr.StudentID, f.EmailOrStudentID) {
				return usr, nil
			}
		}
	}
	return User{}, ErrNotFound
}

func (r *repoMock) GetAdmin(_ context.Context) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		if usr.IsAdmin() && usr.IsActive {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *repoMock) QueryStudents(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []User
	for _, usr := range r.users {
		if usr.IsStudent() {
			res = append(res, usr)
		}
	}
	return res, nil
}

func (r *repoMock) QueryUsers(_ context.Context, ids []primitive.ObjectID) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []User
	for _, id := range ids {
		if usr, ok := r.users[id]; ok {
			res = append(res, usr)
		}
	}
	return res, nil
}

func (r *repoMock) FilterActiveStudents(_ context.Context, ids []primitive.ObjectID) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []User
	for _, id := range ids {
		if usr, ok := r.users[id]; ok && usr.IsStudent() && usr.IsActive {
			res = append(res, usr)
		}
	}
	return res, nil
}

func (r *repoMock) CountStudents(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int
	for _, usr := range r.users {
		if usr.IsStudent() {
			count++
		}
	}
	return count, nil
}

func (r *repoMock) UpdateUser(_ context.Context, usr User, isActive *bool) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[usr.ID]; !ok {
		return User{}, ErrNotFound
	}
	if isActive != nil {
		usr.IsActive = *isActive
	}
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *repoMock) RoleStats(_ context.Context) ([]RoleStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make(map[string]*RoleStat)
	for _, usr := range r.users {
		rs, ok := stats[usr.Role]
		if !ok {
			rs = &RoleStat{Role: usr.Role}
			stats[usr.Role] = rs
		}
		rs.Count++
		if usr.IsActive {
			rs.Active++
		}
	}
	res := make([]RoleStat, 0, len(stats))
	for _, rs := range stats {
		res = append(res, *rs)
	}
	return res, nil
}

func (r *repoMock) CountUsers(_ context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active int
	for _, usr := range r.users {
		if usr.IsActive {
			active++
		}
	}
	return len(r.users), active, nil
}

type mailerMock struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailerMock) SendMessages(msgs ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgs...)
}

func (m *mailerMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var testConf = &core.Config{
	AppName:                   "Shule",
	SecretKey:                 "secret",
	FrontendBaseURL:           "http://localhost:3000",
	DefaultFromEmail:          mail.Address{Name: "Shule", Address: "noreply@test.test"},
	PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
}

func newTestService() (*repoMock, *mailerMock, Service) {
	repo := newRepoMock()
	mailer := &mailerMock{}
	return repo, mailer, NewService(repo, mailer, testConf)
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	_, mailer, svc := newTestService()

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if usr.StudentID != FormatStudentID(1) {
		t.Errorf("StudentID = %q, want %q", usr.StudentID, FormatStudentID(1))
	}
	if !usr.IsActive {
		t.Error("new accounts must start active")
	}
	if err = usr.CheckPassword("LePassword?"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
	if mailer.count() != 1 {
		t.Errorf("welcome mails sent = %d, want 1", mailer.count())
	}

	// second student gets the next number
	usr2, err := svc.Create(ctx, NewUser{
		Name:     "Next",
		Email:    "next@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryDataScience,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if usr2.StudentID != FormatStudentID(2) {
		t.Errorf("StudentID = %q, want %q", usr2.StudentID, FormatStudentID(2))
	}

	// admins carry no student number
	admin, err := svc.Create(ctx, NewUser{
		Name:     "Admin",
		Email:    "admin@test.test",
		Password: "LePassword?",
		Role:     RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if admin.StudentID != "" {
		t.Errorf("StudentID = %q, want empty", admin.StudentID)
	}
}

func TestServiceCheckUniqueness(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService()

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err = svc.CheckUniqueness("stu@test.test", ""); err == nil {
		t.Error("CheckUniqueness() accepted a taken email")
	}
	if err = svc.CheckUniqueness("stu@test.test", "", usr); err != nil {
		t.Errorf("CheckUniqueness() with exclusion error = %v", err)
	}
	if err = svc.CheckUniqueness("other@test.test", usr.StudentID); err == nil {
		t.Error("CheckUniqueness() accepted a taken student number")
	}
}

func TestServiceStudentNumberLogin(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService()

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// lookup keys are normalized; the stored number stays uppercase
	got, err := svc.GetByEmailOrStudentID(ctx, strings.ToLower(usr.StudentID))
	if err != nil {
		t.Fatalf("GetByEmailOrStudentID() error = %v", err)
	}
	if got.ID != usr.ID {
		t.Errorf("got user %v, want %v", got.ID, usr.ID)
	}
}

func TestServiceSetStudentStatus(t *testing.T) {
	ctx := context.Background()
	_, mailer, svc := newTestService()

	student, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	admin, err := svc.Create(ctx, NewUser{
		Name:     "Admin",
		Email:    "admin@test.test",
		Password: "LePassword?",
		Role:     RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// only students can be toggled
	if _, err = svc.SetStudentStatus(ctx, admin.ID.Hex(), false); err != ErrNotFound {
		t.Errorf("SetStudentStatus() on admin error = %v, want %v", err, ErrNotFound)
	}

	sent := mailer.count()
	student, err = svc.SetStudentStatus(ctx, student.ID.Hex(), false)
	if err != nil {
		t.Fatalf("SetStudentStatus() error = %v", err)
	}
	if student.IsActive {
		t.Error("student still active after deactivation")
	}
	if mailer.count() != sent+1 {
		t.Errorf("status mails sent = %d, want %d", mailer.count()-sent, 1)
	}
}

func TestServiceChangePassword(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService()

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = svc.ChangePassword(ctx, usr, ChangeUserPassword{
		CurrentPassword: "wrong",
		NewPassword:     "NewPassword?",
		PasswordConfirm: "NewPassword?",
	})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Fatalf("ChangePassword() with wrong current error = %v, want validation error", err)
	}

	if err = svc.ChangePassword(ctx, usr, ChangeUserPassword{
		CurrentPassword: "LePassword?",
		NewPassword:     "NewPassword?",
		PasswordConfirm: "NewPassword?",
	}); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	refreshed, err := svc.GetByID(ctx, usr.ID.Hex())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if err = refreshed.CheckPassword("NewPassword?"); err != nil {
		t.Errorf("CheckPassword() with new password error = %v", err)
	}
}

func TestServiceResetPassword(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newTestService()

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Stu Dent",
		Email:    "stu@test.test",
		Password: "LePassword?",
		Role:     RoleStudent,
		Category: CategoryWebDev,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	token, err := MakeToken(usr)
	if err != nil {
		t.Fatalf("MakeToken() error = %v", err)
	}

	if err = svc.ResetPassword(ctx, ResetUserPassword{
		Token:    "not-a-token",
		UID:      EncodeUID(usr),
		Password: "NewPassword?",
	}); err == nil {
		t.Error("ResetPassword() accepted a bogus token")
	}

	if err = svc.ResetPassword(ctx, ResetUserPassword{
		Token:    token,
		UID:      EncodeUID(usr),
		Password: "NewPassword?",
	}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	refreshed, err := svc.GetByID(ctx, usr.ID.Hex())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if err = refreshed.CheckPassword("NewPassword?"); err != nil {
		t.Errorf("CheckPassword() with new password error = %v", err)
	}

	// a used token no longer verifies; the password change rotated the hash
	if err = svc.ResetPassword(ctx, ResetUserPassword{
		Token:    token,
		UID:      EncodeUID(usr),
		Password: "AnotherPassword?",
	}); err == nil {
		t.Error("ResetPassword() accepted a used token")
	}
}
