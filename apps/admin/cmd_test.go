package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func setup(t *testing.T) (*commandLine, user.Repository) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	return &commandLine{usrRepo: usrRepo}, usrRepo
}

func createUser(t *testing.T, repo user.Repository, name, email, pwd, role string, isActive bool) user.User {
	t.Helper()
	usr := user.User{
		Name:     name,
		Email:    email,
		Role:     role,
		IsActive: isActive,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("setting password: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return usr
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_addSuperuser(t *testing.T) {
	cli, usrRepo := setup(t)

	existing := createUser(t, usrRepo, "Existing", "existing@test.cd", "mdr", user.RoleStudent, false)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addsuperuser"}, wantErr: errHelp},
		{name: "name but no email", args: []string{"addsuperuser", "-name", "Awe"}, wantErr: errHelp},
		{name: "no password", args: []string{"addsuperuser", "-name", "Awe", "-email", "awe@test.cd"}, wantErr: errHelp},
		{name: "creates admin", args: []string{"addsuperuser", "-name", "Awe", "-email", "awe@test.cd"}, pwd: "lol"},
		{name: "promotes existing user", args: []string{"addsuperuser", "-name", "Existing", "-email", existing.Email}, pwd: "lol"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("created admin is active", func(t *testing.T) {
		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "awe@test.cd"})
		if err != nil {
			t.Fatalf("GetUser() failed, %v", err)
		}
		if !usr.IsAdmin() || !usr.IsActive {
			t.Errorf("user = %+v; want an active admin", usr)
		}
	})

	t.Run("promoted user is an active admin", func(t *testing.T) {
		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
		if err != nil {
			t.Fatalf("GetUser() failed, %v", err)
		}
		if !usr.IsAdmin() || !usr.IsActive {
			t.Errorf("user = %+v; want an active admin", usr)
		}
		if bytes.Equal(usr.PasswordHash, existing.PasswordHash) {
			t.Error("failed to update password")
		}
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo := setup(t)

	usr := createUser(t, usrRepo, "Awe", "awe@test.cd", "mdr", user.RoleAdmin, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with email", args: []string{"resetpassword", "-email", usr.Email}, pwd: "lol"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
