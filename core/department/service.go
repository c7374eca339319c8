package department

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
)

var (
	ErrNotFound   = errors.New("department not found")
	ErrNameExists = errors.New("a department with this name already exists")
	ErrInUse      = errors.New("cannot delete a department that still has users or events")
)

type (
	Repository interface {
		// CreateDepartment returns ErrNameExists when the name is taken.
		CreateDepartment(ctx context.Context, dept Department) (Department, error)
		// QueryDepartments returns all departments ordered by name, with their user & event counts.
		QueryDepartments(ctx context.Context) ([]Department, error)
		GetDepartmentByID(ctx context.Context, id int64) (Department, error)
		GetDepartmentByName(ctx context.Context, name string) (Department, error)
		UpdateDepartment(ctx context.Context, dept Department) (Department, error)
		// DeleteDepartment returns ErrInUse when users or events still reference the department.
		DeleteDepartment(ctx context.Context, id int64) error
	}

	Service interface {
		Create(ctx context.Context, nd NewDepartment) (Department, error)
		Query(ctx context.Context) ([]Department, error)
		GetByID(ctx context.Context, id int64) (Department, error)
		Exists(ctx context.Context, id int64) (bool, error)
		Update(ctx context.Context, id int64, ud UpdateDepartment) (Department, error)
		Delete(ctx context.Context, id int64) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nd NewDepartment) (Department, error) {
	if _, err := svc.repo.GetDepartmentByName(ctx, nd.Name); err == nil {
		return Department{}, ErrNameExists
	} else if errors.Cause(err) != ErrNotFound {
		return Department{}, errors.Wrap(err, "checking department name")
	}

	dept, err := svc.repo.CreateDepartment(ctx, Department{
		Name:         nd.Name,
		Description:  core.NullString(nd.Description),
		ContactEmail: core.NullString(nd.ContactEmail),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return Department{}, errors.Wrap(err, "creating department")
	}
	return dept, nil
}

func (svc *service) Query(ctx context.Context) ([]Department, error) {
	return svc.repo.QueryDepartments(ctx)
}

func (svc *service) GetByID(ctx context.Context, id int64) (Department, error) {
	return svc.repo.GetDepartmentByID(ctx, id)
}

func (svc *service) Exists(ctx context.Context, id int64) (bool, error) {
	if _, err := svc.repo.GetDepartmentByID(ctx, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *service) Update(ctx context.Context, id int64, ud UpdateDepartment) (Department, error) {
	dept, err := svc.repo.GetDepartmentByID(ctx, id)
	if err != nil {
		return Department{}, err
	}

	if ud.Name != nil && *ud.Name != dept.Name {
		if other, err := svc.repo.GetDepartmentByName(ctx, *ud.Name); err == nil && other.ID != dept.ID {
			return Department{}, ErrNameExists
		} else if err != nil && errors.Cause(err) != ErrNotFound {
			return Department{}, errors.Wrap(err, "checking department name")
		}
		dept.Name = *ud.Name
	}
	if ud.Description != nil {
		dept.Description = core.NullString(*ud.Description)
	}
	if ud.ContactEmail != nil {
		dept.ContactEmail = core.NullString(*ud.ContactEmail)
	}
	return svc.repo.UpdateDepartment(ctx, dept)
}

func (svc *service) Delete(ctx context.Context, id int64) error {
	dept, err := svc.repo.GetDepartmentByID(ctx, id)
	if err != nil {
		return err
	}
	if dept.UserCount > 0 || dept.EventCount > 0 {
		return ErrInUse
	}
	return svc.repo.DeleteDepartment(ctx, id)
}
