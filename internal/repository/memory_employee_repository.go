package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/employee-directory/internal/domain"
)

// MemoryEmployeeRepository keeps employees in process memory. It is used when
// no Postgres DSN is configured and as the backend for tests.
type MemoryEmployeeRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Employee
	now  func() time.Time
}

// NewMemoryEmployeeRepository returns an empty in-memory repository.
func NewMemoryEmployeeRepository() *MemoryEmployeeRepository {
	return &MemoryEmployeeRepository{
		rows: make(map[string]domain.Employee),
		now:  time.Now,
	}
}

func (m *MemoryEmployeeRepository) view() *memoryView {
	return &memoryView{rows: m.rows, now: m.now}
}

func (m *MemoryEmployeeRepository) Create(ctx context.Context, employee *domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Create(ctx, employee)
}

func (m *MemoryEmployeeRepository) Update(ctx context.Context, employee *domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Update(ctx, employee)
}

func (m *MemoryEmployeeRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Delete(ctx, id)
}

func (m *MemoryEmployeeRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetByID(ctx, id)
}

func (m *MemoryEmployeeRepository) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Exists(ctx, id)
}

func (m *MemoryEmployeeRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Count(ctx)
}

func (m *MemoryEmployeeRepository) List(ctx context.Context, filter EmployeeFilter) ([]domain.Employee, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().List(ctx, filter)
}

func (m *MemoryEmployeeRepository) ListRoots(ctx context.Context) ([]domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListRoots(ctx)
}

func (m *MemoryEmployeeRepository) ListByManagers(ctx context.Context, managerIDs []string) ([]domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListByManagers(ctx, managerIDs)
}

func (m *MemoryEmployeeRepository) SearchByName(ctx context.Context, query string, limit int) ([]domain.EmployeeRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SearchByName(ctx, query, limit)
}

func (m *MemoryEmployeeRepository) ClearManager(ctx context.Context, managerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ClearManager(ctx, managerID)
}

// InTx holds the repository lock for the whole scope. Writes go straight to
// the live rows while a journal remembers the prior state of every touched
// key; the journal is replayed when fn fails or panics.
func (m *MemoryEmployeeRepository) InTx(ctx context.Context, fn func(EmployeeRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &memoryView{rows: m.rows, now: m.now, journal: make(map[string]journalEntry)}
	committed := false
	defer func() {
		if !committed {
			view.rollback()
		}
	}()
	if err := fn(view); err != nil {
		return err
	}
	committed = true
	return nil
}

// journalEntry is the state of a key before its first write in a scope.
type journalEntry struct {
	row     domain.Employee
	existed bool
}

// memoryView implements EmployeeRepository over a row map without locking.
// A nil journal means writes are not undoable.
type memoryView struct {
	rows    map[string]domain.Employee
	now     func() time.Time
	journal map[string]journalEntry
}

func (v *memoryView) touch(id string) {
	if v.journal == nil {
		return
	}
	if _, seen := v.journal[id]; seen {
		return
	}
	row, existed := v.rows[id]
	v.journal[id] = journalEntry{row: row, existed: existed}
}

func (v *memoryView) rollback() {
	for id, entry := range v.journal {
		if entry.existed {
			v.rows[id] = entry.row
		} else {
			delete(v.rows, id)
		}
	}
	v.journal = nil
}

func (v *memoryView) Create(_ context.Context, employee *domain.Employee) error {
	now := v.now().UTC()
	employee.CreatedAt = now
	employee.UpdatedAt = now
	v.touch(employee.ID)
	v.rows[employee.ID] = cloneEmployee(*employee)
	return nil
}

func (v *memoryView) Update(_ context.Context, employee *domain.Employee) error {
	existing, ok := v.rows[employee.ID]
	if !ok {
		return ErrNotFound
	}
	employee.CreatedAt = existing.CreatedAt
	employee.UpdatedAt = v.now().UTC()
	v.touch(employee.ID)
	v.rows[employee.ID] = cloneEmployee(*employee)
	return nil
}

func (v *memoryView) Delete(_ context.Context, id string) error {
	if _, ok := v.rows[id]; !ok {
		return ErrNotFound
	}
	v.touch(id)
	delete(v.rows, id)
	for key, row := range v.rows {
		if row.ManagerID != nil && *row.ManagerID == id {
			v.touch(key)
			row.ManagerID = nil
			v.rows[key] = row
		}
	}
	return nil
}

func (v *memoryView) GetByID(_ context.Context, id string) (*domain.Employee, error) {
	row, ok := v.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	employee := cloneEmployee(row)
	return &employee, nil
}

func (v *memoryView) Exists(_ context.Context, id string) (bool, error) {
	_, ok := v.rows[id]
	return ok, nil
}

func (v *memoryView) Count(_ context.Context) (int, error) {
	return len(v.rows), nil
}

func (v *memoryView) List(_ context.Context, filter EmployeeFilter) ([]domain.Employee, int, error) {
	needle := strings.ToLower(filter.Query)
	matched := make([]domain.Employee, 0, len(v.rows))
	for _, row := range v.rows {
		if needle == "" ||
			strings.Contains(strings.ToLower(row.FullName), needle) ||
			strings.Contains(strings.ToLower(row.Position), needle) ||
			strings.Contains(strings.ToLower(row.Email), needle) {
			matched = append(matched, row)
		}
	}
	sortEmployees(matched, filter.Sort)

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.Employee{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return cloneEmployees(matched[offset:end]), total, nil
}

func (v *memoryView) ListRoots(_ context.Context) ([]domain.Employee, error) {
	var roots []domain.Employee
	for _, row := range v.rows {
		if row.IsRoot() {
			roots = append(roots, row)
		}
	}
	sortEmployees(roots, EmployeeSort{Field: SortByFullName})
	return cloneEmployees(roots), nil
}

func (v *memoryView) ListByManagers(_ context.Context, managerIDs []string) ([]domain.Employee, error) {
	if len(managerIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(managerIDs))
	for _, id := range managerIDs {
		wanted[id] = struct{}{}
	}
	var result []domain.Employee
	for _, row := range v.rows {
		if row.IsRoot() {
			continue
		}
		if _, ok := wanted[*row.ManagerID]; ok {
			result = append(result, row)
		}
	}
	sortEmployees(result, EmployeeSort{Field: SortByFullName})
	return cloneEmployees(result), nil
}

func (v *memoryView) SearchByName(_ context.Context, query string, limit int) ([]domain.EmployeeRef, error) {
	needle := strings.ToLower(query)
	var matched []domain.Employee
	for _, row := range v.rows {
		if strings.Contains(strings.ToLower(row.FullName), needle) {
			matched = append(matched, row)
		}
	}
	sortEmployees(matched, EmployeeSort{Field: SortByFullName})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	refs := make([]domain.EmployeeRef, 0, len(matched))
	for _, row := range matched {
		refs = append(refs, domain.EmployeeRef{ID: row.ID, FullName: row.FullName})
	}
	return refs, nil
}

func (v *memoryView) ClearManager(_ context.Context, managerID string) ([]string, error) {
	var ids []string
	now := v.now().UTC()
	for key, row := range v.rows {
		if row.ManagerID != nil && *row.ManagerID == managerID {
			v.touch(key)
			row.ManagerID = nil
			row.UpdatedAt = now
			v.rows[key] = row
			ids = append(ids, key)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *memoryView) InTx(_ context.Context, fn func(EmployeeRepository) error) error {
	return fn(v)
}

// sortEmployees orders rows the way the Postgres queries do: NULL manager ids
// sort after every value ascending, and ties fall back to id.
func sortEmployees(rows []domain.Employee, order EmployeeSort) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareField(rows[i], rows[j], order.Field)
		if order.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
}

func compareField(a, b domain.Employee, field SortField) int {
	switch field {
	case SortByID:
		return strings.Compare(a.ID, b.ID)
	case SortByPosition:
		return strings.Compare(a.Position, b.Position)
	case SortByEmail:
		return strings.Compare(a.Email, b.Email)
	case SortByHireDate:
		return a.HireDate.Compare(b.HireDate)
	case SortByManagerID:
		switch {
		case a.ManagerID == nil && b.ManagerID == nil:
			return 0
		case a.ManagerID == nil:
			return 1
		case b.ManagerID == nil:
			return -1
		}
		return strings.Compare(*a.ManagerID, *b.ManagerID)
	default:
		return strings.Compare(a.FullName, b.FullName)
	}
}

func cloneEmployee(e domain.Employee) domain.Employee {
	if e.ManagerID != nil {
		managerID := *e.ManagerID
		e.ManagerID = &managerID
	}
	return e
}

func cloneEmployees(rows []domain.Employee) []domain.Employee {
	out := make([]domain.Employee, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneEmployee(row))
	}
	return out
}
