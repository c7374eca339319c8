package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core/user"
)

// addUser creates an active user.User; admins are allowed any role.
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Printf("created %s (%s) with id %d\n", usr.Username, usr.Role, usr.ID)
	return nil
}
