package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/user"
	emailsvc "github.com/trezcool/mulespace/services/email"
	logsvc "github.com/trezcool/mulespace/services/logger"
	"github.com/trezcool/mulespace/storage/database"
	sqlxrepos "github.com/trezcool/mulespace/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(os.Stdout, "ADMIN", conf), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Error(fmt.Sprintf("setting up database: %v", err), err)
		return 1
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	defer func() { _ = db.Close() }()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up services
	deptSvc := department.NewService(sqlxrepos.NewDepartmentRepository(db))
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), deptSvc, emailsvc.NewConsoleService(conf, logger), conf)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		validate: validate,
		usrSvc:   usrSvc,
		deptSvc:  deptSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		return 1
	}
	return 0
}
