package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/user"
)

const (
	userColumns = `u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name, u.role, u.department_id,
		d.name AS department_name, u.is_active, u.created_at, u.updated_at, u.last_login`
	userFrom = `FROM users u LEFT JOIN departments d ON d.id = u.department_id`
)

var userOrderings = map[string]string{
	"id":         "u.id",
	"username":   "u.username",
	"email":      "u.email",
	"first_name": "u.first_name",
	"last_name":  "u.last_name",
	"role":       "u.role",
	"created_at": "u.created_at",
	"last_login": "u.last_login",
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapConstraintErr maps unique violations to the user errors.
func (repo userRepository) trapConstraintErr(err error, msg string) error {
	if pqErr, ok := pqError(err); ok {
		switch {
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == "users_email_key":
			return user.ErrEmailExists
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == "users_username_key":
			return user.ErrUsernameExists
		case pqErr.Code == pqForeignKeyViolation:
			return core.NewFieldError("department_id", "department not found")
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `INSERT INTO users (email, username, password_hash, first_name, last_name, role, department_id, is_active, created_at, updated_at)
		VALUES (:email, :username, :password_hash, :first_name, :last_name, :role, :department_id, :is_active, :created_at, :updated_at)
		RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, repo.db, q, usr)
	if err != nil {
		return user.User{}, repo.trapConstraintErr(err, "inserting user")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&usr.ID); err != nil {
			return user.User{}, errors.Wrap(err, "scanning user id")
		}
	}
	if err = rows.Err(); err != nil {
		return user.User{}, repo.trapConstraintErr(err, "inserting user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, page core.Page, ordering []core.DBOrdering) ([]user.User, int, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			p := searchPattern(filter.Search)
			w.add("(u.first_name ILIKE ? OR u.last_name ILIKE ? OR u.username ILIKE ? OR u.email ILIKE ?)", p, p, p, p)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			cond, args, err := sqlx.In("u.role IN (?)", roles)
			if err != nil {
				return nil, 0, errors.Wrap(err, "expanding roles")
			}
			w.add(cond, args...)
		}
		if filter.DepartmentID.Valid {
			w.add("u.department_id = ?", filter.DepartmentID.Int64)
		}
		if filter.IsActive != nil {
			w.add("u.is_active = ?", *filter.IsActive)
		}
	}

	users := make([]user.User, 0)
	total, err := selectPage(ctx, repo.db, &users, userColumns, userFrom, w, orderBy(ordering, userOrderings, "u.id"), page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	return users, total, nil
}

func (repo userRepository) getUser(ctx context.Context, cond string, args ...interface{}) (user.User, error) {
	var usr user.User
	q := repo.db.Rebind("SELECT " + userColumns + " " + userFrom + " WHERE " + cond + " LIMIT 1")
	if err := repo.db.GetContext(ctx, &usr, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int64) (user.User, error) {
	return repo.getUser(ctx, "u.id = ?", id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "u.email = ?", email)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "(u.username = ? OR u.email = ?)", username, username)
}

func (repo userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username)
	return exists, errors.Wrap(err, "checking username")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `UPDATE users SET email = :email, username = :username, password_hash = :password_hash,
		first_name = :first_name, last_name = :last_name, role = :role, department_id = :department_id,
		is_active = :is_active, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, usr)
	if err != nil {
		return user.User{}, repo.trapConstraintErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}
