package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// withDepartment must be called with the lock held.
func (repo *userRepository) withDepartment(usr user.User) user.User {
	usr.DepartmentName.Valid = false
	usr.DepartmentName.String = ""
	if usr.DepartmentID.Valid {
		if dept, ok := repo.db.departments[usr.DepartmentID.Int64]; ok {
			usr.DepartmentName.SetValid(dept.Name)
		}
	}
	return usr
}

// checkConstraints must be called with the lock held.
func (repo *userRepository) checkConstraints(usr user.User) error {
	for _, u := range repo.db.users {
		if u.ID == usr.ID {
			continue
		}
		if u.Email == usr.Email {
			return user.ErrEmailExists
		}
		if u.Username == usr.Username {
			return user.ErrUsernameExists
		}
	}
	if usr.DepartmentID.Valid {
		if _, ok := repo.db.departments[usr.DepartmentID.Int64]; !ok {
			return core.NewFieldError("department_id", "department not found")
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkConstraints(usr); err != nil {
		return user.User{}, err
	}
	usr.ID = repo.db.nextID("users")
	repo.db.users[usr.ID] = usr
	return repo.withDepartment(usr), nil
}

func (repo *userRepository) matches(filter *user.QueryFilter, usr user.User) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !contains(filter.Search, usr.FirstName, usr.LastName, usr.Username, usr.Email) {
		return false
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, r := range filter.Roles {
			if usr.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.DepartmentID.Valid && usr.DepartmentID != filter.DepartmentID {
		return false
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	return true
}

func userLess(a, b user.User, ord core.DBOrdering) (less, equal bool) {
	var x, y string
	switch ord.Field {
	case "username":
		x, y = a.Username, b.Username
	case "email":
		x, y = a.Email, b.Email
	case "first_name":
		x, y = a.FirstName, b.FirstName
	case "last_name":
		x, y = a.LastName, b.LastName
	case "role":
		x, y = string(a.Role), string(b.Role)
	case "created_at":
		if a.CreatedAt.Equal(b.CreatedAt) {
			return false, true
		}
		return a.CreatedAt.Before(b.CreatedAt) == ord.Ascending, false
	default:
		return false, true
	}
	if x == y {
		return false, true
	}
	return (x < y) == ord.Ascending, false
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, page core.Page, ordering []core.DBOrdering) ([]user.User, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if repo.matches(filter, usr) {
			users = append(users, repo.withDepartment(usr))
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			if less, equal := userLess(users[i], users[j], ord); !equal {
				return less
			}
		}
		return users[i].ID < users[j].ID
	})
	start, end := page.Slice(len(users))
	return users[start:end], len(users), nil
}

func (repo *userRepository) find(match func(user.User) bool) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if match(usr) {
			return repo.withDepartment(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByID(_ context.Context, id int64) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return repo.withDepartment(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.find(func(u user.User) bool { return u.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	return repo.find(func(u user.User) bool { return u.Username == username || u.Email == username })
}

func (repo *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := repo.find(func(u user.User) bool { return u.Username == username })
	if err == user.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkConstraints(usr); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = usr
	return repo.withDepartment(usr), nil
}
