package user

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Program tracks a student can be enrolled in.
const (
	CategoryWebDev      = "Web Development"
	CategoryDataScience = "Data Science"
	CategoryMobileDev   = "Mobile Development"
	CategoryUIUXDesign  = "UI/UX Design"
)

var (
	AllRoles      = []string{RoleAdmin, RoleStudent}
	AllCategories = []string{CategoryWebDev, CategoryDataScience, CategoryMobileDev, CategoryUIUXDesign}
)

type User struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Email           string             `json:"email" bson:"email"`
	Role            string             `json:"role" bson:"role"`
	StudentID       string             `json:"student_id,omitempty" bson:"student_id,omitempty"`
	Category        string             `json:"category,omitempty" bson:"category,omitempty"`
	Avatar          string             `json:"avatar,omitempty" bson:"avatar,omitempty"`
	GithubProfile   string             `json:"github_profile,omitempty" bson:"github_profile,omitempty"`
	LinkedinProfile string             `json:"linkedin_profile,omitempty" bson:"linkedin_profile,omitempty"`
	IsActive        bool               `json:"is_active" bson:"is_active"`
	PasswordHash    []byte             `json:"-" bson:"password_hash"`
	LastLogin       time.Time          `json:"last_login" bson:"last_login"` // UTC
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"` // UTC
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// FormatStudentID renders the nth student number, eg. "S007".
func FormatStudentID(n int) string {
	return fmt.Sprintf("S%03d", n)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
	StudentID       string `json:"student_id" validate:"omitempty,alphanum_"`
	Category        string `json:"category" validate:"omitempty,category"`
}

func (nu *NewUser) Validate(svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.StudentID = core.CleanString(nu.StudentID, false)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	if nu.Role == RoleStudent && nu.Category == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "category", Error: "this field is required for students"})
	}
	return svc.CheckUniqueness(nu.Email, nu.StudentID)
}

// UpdateProfile defines what information a user may modify on their own profile.
type UpdateProfile struct {
	Name            string `json:"name"`
	Avatar          string `json:"avatar" validate:"omitempty,url"`
	GithubProfile   string `json:"github_profile" validate:"omitempty,url"`
	LinkedinProfile string `json:"linkedin_profile" validate:"omitempty,url"`
}

func (up *UpdateProfile) Validate() error {
	up.Name = core.CleanString(up.Name)
	return core.Validate.Struct(up)
}

type ChangeUserPassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=NewPassword"`
}

func (cp ChangeUserPassword) Validate() error { return core.Validate.Struct(cp) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

// RoleStat is a per-role population count for the admin dashboard.
type RoleStat struct {
	Role   string `json:"role" bson:"_id"`
	Count  int    `json:"count" bson:"count"`
	Active int    `json:"active" bson:"active"`
}
