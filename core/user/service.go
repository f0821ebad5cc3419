package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound        = errors.New("user not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrStudentIDExists = errors.New("a user with this student number already exists")
)

type (
	GetFilter struct {
		ID               primitive.ObjectID
		Email            string
		EmailOrStudentID string
	}

	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email, studentID string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		GetAdmin(ctx context.Context) (User, error)
		QueryStudents(ctx context.Context) ([]User, error)
		QueryUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error)
		// FilterActiveStudents returns the subset of ids that reference active students.
		FilterActiveStudents(ctx context.Context, ids []primitive.ObjectID) ([]User, error)
		CountStudents(ctx context.Context) (int, error)
		// UpdateUser persists the set fields of usr; isActive is applied only when non-nil.
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		// RoleStats aggregates user counts (total and active) per role.
		RoleStats(ctx context.Context) ([]RoleStat, error)
		CountUsers(ctx context.Context) (total, active int, err error)
	}

	Service interface {
		CheckUniqueness(email, studentID string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByEmailOrStudentID(ctx context.Context, key string) (User, error)
		GetAdmin(ctx context.Context) (User, error)
		QueryStudents(ctx context.Context) ([]User, error)
		QueryUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error)
		ActiveStudents(ctx context.Context, ids []primitive.ObjectID) ([]User, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error)
		SetStudentStatus(ctx context.Context, id string, isActive bool) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangeUserPassword) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		RoleStats(ctx context.Context) ([]RoleStat, error)
		CountUsers(ctx context.Context) (total, active int, err error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	// token generation knobs
	secretKey = []byte(conf.SecretKey)
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	frontendBaseURL = conf.FrontendBaseURL

	return &service{
		repo:    repo,
		mailSvc: mailSvc,
	}
}

func (svc *service) CheckUniqueness(email, studentID string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, studentID, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrStudentIDExists:
			field = "student_id"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		Category:  nu.Category,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.IsStudent() {
		usr.StudentID = nu.StudentID
		if usr.StudentID == "" {
			count, err := svc.repo.CountStudents(ctx)
			if err != nil {
				return User{}, errors.Wrap(err, "counting students")
			}
			usr.StudentID = FormatStudentID(count + 1)
		}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: oid})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByEmailOrStudentID(ctx context.Context, key string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{EmailOrStudentID: core.CleanString(key, true /* lower */)})
}

func (svc *service) GetAdmin(ctx context.Context) (User, error) {
	return svc.repo.GetAdmin(ctx)
}

func (svc *service) QueryStudents(ctx context.Context) ([]User, error) {
	return svc.repo.QueryStudents(ctx)
}

func (svc *service) QueryUsers(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	return svc.repo.QueryUsers(ctx, ids)
}

func (svc *service) ActiveStudents(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	return svc.repo.FilterActiveStudents(ctx, ids)
}

func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	if up.Name != "" {
		usr.Name = up.Name
	}
	if up.Avatar != "" {
		usr.Avatar = up.Avatar
	}
	if up.GithubProfile != "" {
		usr.GithubProfile = up.GithubProfile
	}
	if up.LinkedinProfile != "" {
		usr.LinkedinProfile = up.LinkedinProfile
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *service) SetStudentStatus(ctx context.Context, id string, isActive bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsStudent() {
		return User{}, ErrNotFound
	}
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr, &isActive)
	if err != nil {
		return User{}, err
	}
	svc.sendStatusMail(usr, isActive)
	return usr, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangeUserPassword) error {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return core.NewValidationError(
			errors.New("current password is incorrect"),
			core.FieldError{Field: "current_password", Error: "current password is incorrect"},
		)
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return errInvalidToken
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) RoleStats(ctx context.Context) ([]RoleStat, error) {
	return svc.repo.RoleStats(ctx)
}

func (svc *service) CountUsers(ctx context.Context) (int, int, error) {
	return svc.repo.CountUsers(ctx)
}

// emails

func (svc *service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Welcome to the Student Task Portal",
		BodyStr: fmt.Sprintf("Welcome %s! Thank you for registering.", usr.Name),
	})
}

func (svc *service) sendStatusMail(usr User, isActive bool) {
	status := "deactivated"
	if isActive {
		status = "activated"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Account Status Update",
		BodyStr: fmt.Sprintf("Your account has been %s.", status),
	})
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeToken(usr)
	if err != nil {
		return
	}
	resetURL := fmt.Sprintf("%s/reset-password?uid=%s&token=%s", frontendBaseURL, EncodeUID(usr), token)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Password Reset Request",
		BodyStr: fmt.Sprintf("Please follow this link to reset your password: %s", resetURL),
	})
}
