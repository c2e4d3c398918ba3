package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/employee-directory/internal/domain"
)

// ErrNotFound is returned when a referenced employee row does not exist.
var ErrNotFound = errors.New("employee not found")

// hierarchyLockKey identifies the advisory lock that serializes hierarchy writes.
const hierarchyLockKey int64 = 0x656d706c6f796565

// EmployeeRepository handles persistence for employees.
type EmployeeRepository interface {
	Create(ctx context.Context, employee *domain.Employee) error
	Update(ctx context.Context, employee *domain.Employee) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Employee, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, filter EmployeeFilter) ([]domain.Employee, int, error)
	ListRoots(ctx context.Context) ([]domain.Employee, error)
	ListByManagers(ctx context.Context, managerIDs []string) ([]domain.Employee, error)
	SearchByName(ctx context.Context, query string, limit int) ([]domain.EmployeeRef, error)
	// ClearManager detaches every direct report of managerID and returns their ids.
	ClearManager(ctx context.Context, managerID string) ([]string, error)
	// InTx runs fn inside a write scope that is serialized against every other
	// InTx scope. Nested calls reuse the outer scope.
	InTx(ctx context.Context, fn func(EmployeeRepository) error) error
}

// SortField names an orderable employee attribute.
type SortField string

const (
	SortByID        SortField = "id"
	SortByFullName  SortField = "full_name"
	SortByPosition  SortField = "position"
	SortByEmail     SortField = "email"
	SortByHireDate  SortField = "hire_date"
	SortByManagerID SortField = "manager_id"
)

// sortColumns maps sort fields to their SQL columns.
var sortColumns = map[SortField]string{
	SortByID:        "id",
	SortByFullName:  "full_name",
	SortByPosition:  "position",
	SortByEmail:     "email",
	SortByHireDate:  "hire_date",
	SortByManagerID: "manager_id",
}

// ParseSort converts "field" or "-field" into an EmployeeSort.
func ParseSort(raw string) (EmployeeSort, bool) {
	desc := strings.HasPrefix(raw, "-")
	field := SortField(strings.TrimPrefix(raw, "-"))
	if _, ok := sortColumns[field]; !ok {
		return EmployeeSort{}, false
	}
	return EmployeeSort{Field: field, Desc: desc}, true
}

// EmployeeSort orders a listing. Ties are always broken by id ascending.
type EmployeeSort struct {
	Field SortField
	Desc  bool
}

// EmployeeFilter defines query params for employee listing.
type EmployeeFilter struct {
	Query  string
	Sort   EmployeeSort
	Limit  int
	Offset int
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type employeeRepository struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewEmployeeRepository instantiates the Postgres-backed repository.
func NewEmployeeRepository(pool *pgxpool.Pool) EmployeeRepository {
	return &employeeRepository{pool: pool, db: pool}
}

// NewEmployeeStore picks the Postgres repository when a pool is available and
// falls back to a fresh in-memory store otherwise.
func NewEmployeeStore(pool *pgxpool.Pool) EmployeeRepository {
	if pool == nil {
		return NewMemoryEmployeeRepository()
	}
	return NewEmployeeRepository(pool)
}

const employeeColumns = `id, full_name, position, email, hire_date, manager_id, created_at, updated_at`

func scanEmployee(row pgx.Row, employee *domain.Employee) error {
	return row.Scan(
		&employee.ID,
		&employee.FullName,
		&employee.Position,
		&employee.Email,
		&employee.HireDate,
		&employee.ManagerID,
		&employee.CreatedAt,
		&employee.UpdatedAt,
	)
}

func collectEmployees(rows pgx.Rows) ([]domain.Employee, error) {
	defer rows.Close()

	var result []domain.Employee
	for rows.Next() {
		var employee domain.Employee
		if err := scanEmployee(rows, &employee); err != nil {
			return nil, err
		}
		result = append(result, employee)
	}
	return result, rows.Err()
}

func (r *employeeRepository) Create(ctx context.Context, employee *domain.Employee) error {
	const query = `
        INSERT INTO employees (id, full_name, position, email, hire_date, manager_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		employee.ID,
		employee.FullName,
		employee.Position,
		employee.Email,
		employee.HireDate,
		employee.ManagerID,
	).Scan(&employee.CreatedAt, &employee.UpdatedAt)
}

func (r *employeeRepository) Update(ctx context.Context, employee *domain.Employee) error {
	const query = `
        UPDATE employees
        SET full_name=$1, position=$2, email=$3, hire_date=$4, manager_id=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		employee.FullName,
		employee.Position,
		employee.Email,
		employee.HireDate,
		employee.ManagerID,
		employee.ID,
	).Scan(&employee.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *employeeRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM employees WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *employeeRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id=$1`

	var employee domain.Employee
	if err := scanEmployee(r.db.QueryRow(ctx, query, id), &employee); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &employee, nil
}

func (r *employeeRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM employees WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *employeeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM employees`).Scan(&count)
	return count, err
}

func (r *employeeRepository) List(ctx context.Context, filter EmployeeFilter) ([]domain.Employee, int, error) {
	query, countQuery, args := buildListQuery(filter)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	result, err := collectEmployees(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// buildListQuery returns the page query, the matching count query and their shared args.
func buildListQuery(filter EmployeeFilter) (string, string, []any) {
	args := []any{}
	where := ""
	if filter.Query != "" {
		args = append(args, likePattern(filter.Query))
		n := len(args)
		where = fmt.Sprintf(" WHERE full_name ILIKE $%d OR position ILIKE $%d OR email ILIKE $%d", n, n, n)
	}

	column, ok := sortColumns[filter.Sort.Field]
	if !ok {
		column = sortColumns[SortByFullName]
	}
	direction := "ASC"
	if filter.Sort.Desc {
		direction = "DESC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s", column, direction)
	if column != "id" {
		order += ", id ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + employeeColumns + ` FROM employees` + where + order +
		fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	countQuery := `SELECT COUNT(*) FROM employees` + where
	return query, countQuery, args
}

func likePattern(raw string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(raw)
	return "%" + escaped + "%"
}

func (r *employeeRepository) ListRoots(ctx context.Context) ([]domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE manager_id IS NULL ORDER BY full_name, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectEmployees(rows)
}

func (r *employeeRepository) ListByManagers(ctx context.Context, managerIDs []string) ([]domain.Employee, error) {
	if len(managerIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE manager_id = ANY($1) ORDER BY full_name, id`
	rows, err := r.db.Query(ctx, query, managerIDs)
	if err != nil {
		return nil, err
	}
	return collectEmployees(rows)
}

func (r *employeeRepository) SearchByName(ctx context.Context, query string, limit int) ([]domain.EmployeeRef, error) {
	const sql = `
        SELECT id, full_name FROM employees
        WHERE full_name ILIKE $1
        ORDER BY full_name, id
        LIMIT $2`

	rows, err := r.db.Query(ctx, sql, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EmployeeRef
	for rows.Next() {
		var ref domain.EmployeeRef
		if err := rows.Scan(&ref.ID, &ref.FullName); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (r *employeeRepository) ClearManager(ctx context.Context, managerID string) ([]string, error) {
	const query = `
        UPDATE employees SET manager_id=NULL, updated_at=NOW()
        WHERE manager_id=$1
        RETURNING id`

	rows, err := r.db.Query(ctx, query, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *employeeRepository) InTx(ctx context.Context, fn func(EmployeeRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey); err != nil {
			return fmt.Errorf("acquire hierarchy lock: %w", err)
		}
		return fn(&employeeRepository{pool: r.pool, db: tx, inTx: true})
	})
}
