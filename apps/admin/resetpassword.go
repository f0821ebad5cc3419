package main

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) resetPassword(key, pwd string) error {
	ctx := context.Background()
	key = core.CleanString(key, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{EmailOrStudentID: key})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = cli.usrRepo.UpdateUser(ctx, usr, nil)
	return err
}
