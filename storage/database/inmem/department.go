package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/mulespace/core/department"
)

type departmentRepository struct {
	db *DB
}

var _ department.Repository = (*departmentRepository)(nil)

func NewDepartmentRepository(db *DB) department.Repository {
	return &departmentRepository{db: db}
}

// withCounts must be called with the lock held.
func (repo *departmentRepository) withCounts(dept department.Department) department.Department {
	dept.UserCount, dept.EventCount = 0, 0
	for _, u := range repo.db.users {
		if u.DepartmentID.Valid && u.DepartmentID.Int64 == dept.ID {
			dept.UserCount++
		}
	}
	for _, ev := range repo.db.events {
		if ev.DepartmentID == dept.ID {
			dept.EventCount++
		}
	}
	return dept
}

// nameTaken must be called with the lock held.
func (repo *departmentRepository) nameTaken(dept department.Department) bool {
	for _, d := range repo.db.departments {
		if d.ID != dept.ID && d.Name == dept.Name {
			return true
		}
	}
	return false
}

func (repo *departmentRepository) CreateDepartment(_ context.Context, dept department.Department) (department.Department, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.nameTaken(dept) {
		return department.Department{}, department.ErrNameExists
	}
	dept.ID = repo.db.nextID("departments")
	repo.db.departments[dept.ID] = dept
	return repo.withCounts(dept), nil
}

func (repo *departmentRepository) QueryDepartments(_ context.Context) ([]department.Department, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	depts := make([]department.Department, 0, len(repo.db.departments))
	for _, d := range repo.db.departments {
		depts = append(depts, repo.withCounts(d))
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i].Name < depts[j].Name })
	return depts, nil
}

func (repo *departmentRepository) GetDepartmentByID(_ context.Context, id int64) (department.Department, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.departments[id]; ok {
		return repo.withCounts(d), nil
	}
	return department.Department{}, department.ErrNotFound
}

func (repo *departmentRepository) GetDepartmentByName(_ context.Context, name string) (department.Department, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, d := range repo.db.departments {
		if strings.EqualFold(d.Name, name) {
			return repo.withCounts(d), nil
		}
	}
	return department.Department{}, department.ErrNotFound
}

func (repo *departmentRepository) UpdateDepartment(_ context.Context, dept department.Department) (department.Department, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.departments[dept.ID]; !ok {
		return department.Department{}, department.ErrNotFound
	}
	if repo.nameTaken(dept) {
		return department.Department{}, department.ErrNameExists
	}
	repo.db.departments[dept.ID] = dept
	return repo.withCounts(dept), nil
}

func (repo *departmentRepository) DeleteDepartment(_ context.Context, id int64) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	dept, ok := repo.db.departments[id]
	if !ok {
		return department.ErrNotFound
	}
	if d := repo.withCounts(dept); d.UserCount > 0 || d.EventCount > 0 {
		return department.ErrInUse
	}
	delete(repo.db.departments, id)
	return nil
}
