package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/user"
	emailsvc "github.com/trezcool/mulespace/services/email"
	inmemdb "github.com/trezcool/mulespace/storage/database/inmem"
	"github.com/trezcool/mulespace/tests"
)

var (
	usrRepo  user.Repository
	deptRepo department.Repository
)

func setup(t *testing.T) *commandLine {
	conf := &core.Config{AppName: "MuleSpace", SecretKey: "test-secret-key", TestMode: true}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	deptRepo = inmemdb.NewDepartmentRepository(db)
	deptSvc := department.NewService(deptRepo)

	// start CLI
	return &commandLine{
		validate: validate,
		usrSvc:   user.NewService(usrRepo, deptSvc, emailsvc.NewConsoleServiceMock(conf), conf),
		deptSvc:  deptSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	pwd        string // typed at the password prompt
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "event_tags", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	runCLITests(t, cli, tests, nil)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "Lovelace", "ada", "ada@campus.test", user.RoleStudent, null.Int64{}, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "N3w-Passw0rd", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "N3w-Passw0rd"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, pwd: "Ot7er-Passw0rd"},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
		assert.NoError(t, refreshed.CheckPassword(tt.pwd))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	dept := testutil.CreateDepartment(t, deptRepo, "Computer Science")
	testutil.CreateUser(t, usrRepo, "Ada", "Lovelace", "ada", "ada@campus.test", user.RoleAdmin, null.Int64{}, true)

	type want struct {
		email string
		role  user.Role
		dept  null.Int64
	}
	pwd := "Adm1n-Passw0rd"
	tests := []cliTest{
		{name: "missing flags", args: []string{"adduser", "-email", "grace@campus.test"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "grace@campus.test", "-first", "Grace", "-last", "Hopper"}, wantErr: errHelp},
		{
			name:    "email taken",
			args:    []string{"adduser", "-email", "ADA@campus.test", "-first", "Ada", "-last", "Lovelace"},
			pwd:     pwd,
			wantErr: user.ErrEmailExists,
		},
		{
			name:       "unknown department",
			args:       []string{"adduser", "-email", "alan@campus.test", "-first", "Alan", "-last", "Turing", "-department", "404"},
			pwd:        pwd,
			wantErrStr: "creating user: department not found",
		},
		{
			name:  "admin by default",
			args:  []string{"adduser", "-email", "grace@campus.test", "-first", "Grace", "-last", "Hopper"},
			pwd:   pwd,
			extra: want{email: "grace@campus.test", role: user.RoleAdmin},
		},
		{
			name: "department admin",
			args: []string{
				"adduser", "-email", "dan@campus.test", "-first", "Dan", "-last", "Dept",
				"-role", string(user.RoleDepartmentAdmin), "-department", strconv.FormatInt(dept.ID, 10),
			},
			pwd:   pwd,
			extra: want{email: "dan@campus.test", role: user.RoleDepartmentAdmin, dept: null.Int64From(dept.ID)},
		},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		w := tt.extra.(want)
		usr, err := usrRepo.GetUserByEmail(context.Background(), w.email)
		require.NoError(t, err)
		assert.Equal(t, w.role, usr.Role)
		assert.Equal(t, w.dept, usr.DepartmentID)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword(tt.pwd))
	})
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	testutil.CreateDepartment(t, deptRepo, "Computer Science")

	for i := 0; i < 2; i++ { // idempotent
		require.NoError(t, cli.run([]string{"admin", "seed"}))
		depts, err := deptRepo.QueryDepartments(context.Background())
		require.NoError(t, err)
		assert.Len(t, depts, len(defaultDepartments))
	}
}
