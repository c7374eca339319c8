package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core/department"
)

const departmentColumns = `d.id, d.name, d.description, d.contact_email, d.created_at,
	(SELECT COUNT(*) FROM users u WHERE u.department_id = d.id) AS user_count,
	(SELECT COUNT(*) FROM events e WHERE e.department_id = d.id) AS event_count`

type departmentRepository struct {
	db *sqlx.DB
}

var _ department.Repository = (*departmentRepository)(nil)

func NewDepartmentRepository(db *sqlx.DB) department.Repository {
	return &departmentRepository{db: db}
}

func (repo departmentRepository) trapConstraintErr(err error, msg string) error {
	if pqErr, ok := pqError(err); ok {
		switch {
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == "departments_name_key":
			return department.ErrNameExists
		case pqErr.Code == pqForeignKeyViolation:
			return department.ErrInUse
		}
	}
	return errors.Wrap(err, msg)
}

func (repo departmentRepository) CreateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	const q = `INSERT INTO departments (name, description, contact_email, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	if err := repo.db.GetContext(ctx, &dept.ID, q, dept.Name, dept.Description, dept.ContactEmail, dept.CreatedAt); err != nil {
		return department.Department{}, repo.trapConstraintErr(err, "inserting department")
	}
	return dept, nil
}

func (repo departmentRepository) QueryDepartments(ctx context.Context) ([]department.Department, error) {
	depts := make([]department.Department, 0)
	if err := repo.db.SelectContext(ctx, &depts, "SELECT "+departmentColumns+" FROM departments d ORDER BY d.name"); err != nil {
		return nil, errors.Wrap(err, "selecting departments")
	}
	return depts, nil
}

func (repo departmentRepository) getDepartment(ctx context.Context, cond string, arg interface{}) (department.Department, error) {
	var dept department.Department
	if err := repo.db.GetContext(ctx, &dept, "SELECT "+departmentColumns+" FROM departments d WHERE "+cond, arg); err != nil {
		return department.Department{}, trapNoRowsErr(err, department.ErrNotFound, "selecting department")
	}
	return dept, nil
}

func (repo departmentRepository) GetDepartmentByID(ctx context.Context, id int64) (department.Department, error) {
	return repo.getDepartment(ctx, "d.id = $1", id)
}

func (repo departmentRepository) GetDepartmentByName(ctx context.Context, name string) (department.Department, error) {
	return repo.getDepartment(ctx, "LOWER(d.name) = LOWER($1)", name)
}

func (repo departmentRepository) UpdateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	const q = `UPDATE departments SET name = $1, description = $2, contact_email = $3 WHERE id = $4`
	res, err := repo.db.ExecContext(ctx, q, dept.Name, dept.Description, dept.ContactEmail, dept.ID)
	if err != nil {
		return department.Department{}, repo.trapConstraintErr(err, "updating department")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return department.Department{}, department.ErrNotFound
	}
	return repo.GetDepartmentByID(ctx, dept.ID)
}

func (repo departmentRepository) DeleteDepartment(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM departments WHERE id = $1", id)
	if err != nil {
		return repo.trapConstraintErr(err, "deleting department")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return department.ErrNotFound
	}
	return nil
}
