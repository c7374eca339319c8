package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core/department"
)

var defaultDepartments = []string{
	"Halloran Lab",
	"DavisConnects",
	"Computer Science",
	"Biology",
	"Chemistry",
	"Mathematics",
	"English",
	"History",
	"Psychology",
	"Economics",
	"Environmental Studies",
	"Art",
	"Music",
	"Theater and Dance",
	"Physics",
	"Philosophy",
	"Government",
	"Anthropology",
}

// seed creates the default departments, skipping the existing ones.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	created := 0
	for _, name := range defaultDepartments {
		_, err := cli.deptSvc.Create(ctx, department.NewDepartment{Name: name})
		switch errors.Cause(err) {
		case nil:
			created++
		case department.ErrNameExists: // already seeded
		default:
			return errors.Wrapf(err, "creating department %q", name)
		}
	}
	fmt.Printf("created %d departments\n", created)
	return nil
}
