package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/domain"
	"github.com/spec-kit/employee-directory/internal/events"
	"github.com/spec-kit/employee-directory/internal/observability"
	"github.com/spec-kit/employee-directory/internal/repository"
	apperrors "github.com/spec-kit/employee-directory/pkg/util/errorutil"
)

const maxFieldLength = 255

// errCorruptHierarchy is returned when stored manager references loop or
// dangle, which valid operations never produce.
var errCorruptHierarchy = errors.New("stored hierarchy is inconsistent")

// HierarchyService owns employee records and the manager/subordinate
// relationships between them.
type HierarchyService struct {
	employees  repository.EmployeeRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	limits     config.DirectoryConfig
	newID      func() string
	now        func() time.Time
}

// HierarchyDependencies bundles collaborators for the hierarchy service.
type HierarchyDependencies struct {
	EmployeeRepo repository.EmployeeRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// CreateEmployeeInput describes a new employee. An empty ManagerID means top-level.
type CreateEmployeeInput struct {
	FullName  string
	Position  string
	HireDate  string
	Email     string
	ManagerID *string
}

// UpdateEmployeeInput is a partial update. Nil fields are left untouched;
// ManagerIDSet marks ManagerID as provided, where nil clears the manager.
type UpdateEmployeeInput struct {
	FullName     *string
	Position     *string
	HireDate     *string
	Email        *string
	ManagerIDSet bool
	ManagerID    *string
}

// ListEmployeesInput drives the flat, paginated listing.
type ListEmployeesInput struct {
	Query    string
	Sort     string
	Page     int
	PageSize int
}

// EmployeePage is one page of a listing together with the filtered total.
type EmployeePage struct {
	Employees []domain.Employee
	Total     int
	Page      int
	PageSize  int
}

// TreeOptions selects the part of the forest to render. MaxDepth counts
// levels including the roots; zero means unlimited.
type TreeOptions struct {
	RootID   *string
	MaxDepth int
}

// NewHierarchyService constructs the service.
func NewHierarchyService(cfg config.Config, deps HierarchyDependencies) *HierarchyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limits := cfg.Directory
	if limits.DefaultPageSize <= 0 {
		limits.DefaultPageSize = 50
	}
	if limits.MaxPageSize < limits.DefaultPageSize {
		limits.MaxPageSize = limits.DefaultPageSize
	}
	if limits.SearchLimit <= 0 {
		limits.SearchLimit = 10
	}
	if limits.MaxSearchLimit < limits.SearchLimit {
		limits.MaxSearchLimit = limits.SearchLimit
	}
	return &HierarchyService{
		employees:  deps.EmployeeRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		limits:     limits,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Create validates and stores a new employee.
func (s *HierarchyService) Create(ctx context.Context, input CreateEmployeeInput) (*domain.Employee, error) {
	employee, err := validateCreate(input)
	if err != nil {
		s.metrics.RecordHierarchyWrite("create", outcome(err))
		return nil, err
	}
	employee.ID = s.newID()

	err = s.employees.InTx(ctx, func(tx repository.EmployeeRepository) error {
		if employee.ManagerID != nil {
			if err := ensureManagerExists(ctx, tx, *employee.ManagerID); err != nil {
				return err
			}
		}
		if err := tx.Create(ctx, employee); err != nil {
			return fmt.Errorf("insert employee: %w", err)
		}
		return nil
	})
	s.metrics.RecordHierarchyWrite("create", outcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("employee created", zap.String("employee_id", employee.ID))
	s.publishEvent(ctx, events.Event{
		Type:       events.EventEmployeeCreated,
		EmployeeID: employee.ID,
		Payload: events.EmployeeCreatedPayload{
			FullName:  employee.FullName,
			Position:  employee.Position,
			ManagerID: employee.ManagerID,
		},
	})
	return employee, nil
}

// Get returns a single employee.
func (s *HierarchyService) Get(ctx context.Context, id string) (*domain.Employee, error) {
	employee, err := s.employees.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return employee, nil
}

// List returns one page of employees matching the optional filter.
func (s *HierarchyService) List(ctx context.Context, input ListEmployeesInput) (*EmployeePage, error) {
	page := input.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, apperrors.NewValidationError("page must be 1 or greater", map[string]any{"page": input.Page})
	}

	sortKey := strings.TrimSpace(input.Sort)
	if sortKey == "" {
		sortKey = string(repository.SortByFullName)
	}
	order, ok := repository.ParseSort(sortKey)
	if !ok {
		return nil, apperrors.NewValidationError("unsupported sort key", map[string]any{"sort": input.Sort})
	}

	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = s.limits.DefaultPageSize
	}
	if pageSize > s.limits.MaxPageSize {
		pageSize = s.limits.MaxPageSize
	}

	offset := math.MaxInt32
	if page-1 < math.MaxInt32/pageSize {
		offset = (page - 1) * pageSize
	}

	employees, total, err := s.employees.List(ctx, repository.EmployeeFilter{
		Query:  strings.TrimSpace(input.Query),
		Sort:   order,
		Limit:  pageSize,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if employees == nil {
		employees = []domain.Employee{}
	}
	return &EmployeePage{Employees: employees, Total: total, Page: page, PageSize: pageSize}, nil
}

// Update applies a partial update. A provided manager goes through the same
// checks as ReassignManager before anything is written.
func (s *HierarchyService) Update(ctx context.Context, id string, input UpdateEmployeeInput) (*domain.Employee, error) {
	patch, err := validateUpdate(input)
	if err != nil {
		s.metrics.RecordHierarchyWrite("update", outcome(err))
		return nil, err
	}

	var (
		updated    *domain.Employee
		changed    []string
		oldManager *string
	)
	err = s.employees.InTx(ctx, func(tx repository.EmployeeRepository) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, id)
		}
		oldManager = current.ManagerID

		if patch.FullName != nil && *patch.FullName != current.FullName {
			current.FullName = *patch.FullName
			changed = append(changed, "full_name")
		}
		if patch.Position != nil && *patch.Position != current.Position {
			current.Position = *patch.Position
			changed = append(changed, "position")
		}
		if patch.Email != nil && *patch.Email != current.Email {
			current.Email = *patch.Email
			changed = append(changed, "email")
		}
		if patch.HireDate != nil && !patch.HireDate.Equal(current.HireDate) {
			current.HireDate = *patch.HireDate
			changed = append(changed, "hire_date")
		}
		if patch.ManagerIDSet {
			if err := checkManagerAssignment(ctx, tx, id, patch.ManagerID); err != nil {
				return err
			}
			if !equalIDPtr(current.ManagerID, patch.ManagerID) {
				current.ManagerID = patch.ManagerID
				changed = append(changed, "manager_id")
			}
		}

		updated = current
		if len(changed) == 0 {
			return nil
		}
		if err := tx.Update(ctx, current); err != nil {
			return notFoundOr(err, id)
		}
		return nil
	})
	s.metrics.RecordHierarchyWrite("update", outcome(err))
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:       events.EventEmployeeUpdated,
			EmployeeID: id,
			Payload:    events.EmployeeUpdatedPayload{Fields: changed},
		})
	}
	if !equalIDPtr(oldManager, updated.ManagerID) {
		s.publishManagerChanged(ctx, id, oldManager, updated.ManagerID)
	}
	return updated, nil
}

// Delete removes an employee and promotes its direct reports to top-level.
// Deeper levels keep their own managers.
func (s *HierarchyService) Delete(ctx context.Context, id string) error {
	var (
		detached  []string
		managerID *string
	)
	err := s.employees.InTx(ctx, func(tx repository.EmployeeRepository) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, id)
		}
		managerID = current.ManagerID

		detached, err = tx.ClearManager(ctx, id)
		if err != nil {
			return fmt.Errorf("detach subordinates: %w", err)
		}
		if err := tx.Delete(ctx, id); err != nil {
			return notFoundOr(err, id)
		}
		return nil
	})
	s.metrics.RecordHierarchyWrite("delete", outcome(err))
	if err != nil {
		return err
	}

	if detached == nil {
		detached = []string{}
	}
	s.logger.Debug("employee deleted", zap.String("employee_id", id), zap.Int("detached", len(detached)))
	s.publishEvent(ctx, events.Event{
		Type:       events.EventEmployeeDeleted,
		EmployeeID: id,
		Payload:    events.EmployeeDeletedPayload{ManagerID: managerID, DetachedIDs: detached},
	})
	return nil
}

// ReassignManager moves an employee under a new manager, or to top-level
// when newManagerID is nil.
func (s *HierarchyService) ReassignManager(ctx context.Context, employeeID string, newManagerID *string) (*domain.Employee, error) {
	newManagerID = normalizeID(newManagerID)

	var (
		employee   *domain.Employee
		oldManager *string
	)
	err := s.employees.InTx(ctx, func(tx repository.EmployeeRepository) error {
		current, err := tx.GetByID(ctx, employeeID)
		if err != nil {
			return notFoundOr(err, employeeID)
		}
		oldManager = current.ManagerID

		if err := checkManagerAssignment(ctx, tx, employeeID, newManagerID); err != nil {
			return err
		}
		employee = current
		if equalIDPtr(current.ManagerID, newManagerID) {
			return nil
		}
		current.ManagerID = newManagerID
		if err := tx.Update(ctx, current); err != nil {
			return notFoundOr(err, employeeID)
		}
		return nil
	})
	s.metrics.RecordHierarchyWrite("reassign", outcome(err))
	if err != nil {
		return nil, err
	}

	if !equalIDPtr(oldManager, employee.ManagerID) {
		s.publishManagerChanged(ctx, employeeID, oldManager, employee.ManagerID)
	}
	return employee, nil
}

// ListSubordinates returns direct reports, or every descendant when
// transitive is set. Descendants are listed level by level.
func (s *HierarchyService) ListSubordinates(ctx context.Context, employeeID string, transitive bool) ([]domain.Employee, error) {
	if _, err := s.employees.GetByID(ctx, employeeID); err != nil {
		return nil, notFoundOr(err, employeeID)
	}

	result := []domain.Employee{}
	if !transitive {
		direct, err := s.employees.ListByManagers(ctx, []string{employeeID})
		if err != nil {
			return nil, fmt.Errorf("list subordinates: %w", err)
		}
		return append(result, direct...), nil
	}

	err := walkDescendants(ctx, s.employees, employeeID, func(e domain.Employee) bool {
		result = append(result, e)
		return true
	})
	if err != nil {
		return nil, s.traversalError(err, employeeID)
	}
	return result, nil
}

// ListRoots returns every top-level employee.
func (s *HierarchyService) ListRoots(ctx context.Context) ([]domain.Employee, error) {
	roots, err := s.employees.ListRoots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	if roots == nil {
		roots = []domain.Employee{}
	}
	return roots, nil
}

// Ancestors returns the management chain from the direct manager up to the root.
func (s *HierarchyService) Ancestors(ctx context.Context, employeeID string) ([]domain.Employee, error) {
	current, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, notFoundOr(err, employeeID)
	}

	chain := []domain.Employee{}
	seen := map[string]struct{}{employeeID: {}}
	for current.ManagerID != nil {
		if _, dup := seen[*current.ManagerID]; dup {
			return nil, s.traversalError(errCorruptHierarchy, employeeID)
		}
		seen[*current.ManagerID] = struct{}{}
		manager, err := s.employees.GetByID(ctx, *current.ManagerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, s.traversalError(errCorruptHierarchy, employeeID)
			}
			return nil, fmt.Errorf("load manager: %w", err)
		}
		chain = append(chain, *manager)
		current = manager
	}
	return chain, nil
}

// Tree builds the forest, or the subtree under opts.RootID, one level at a time.
func (s *HierarchyService) Tree(ctx context.Context, opts TreeOptions) ([]*domain.TreeNode, error) {
	if opts.MaxDepth < 0 {
		return nil, apperrors.NewValidationError("max_depth must not be negative", map[string]any{"max_depth": opts.MaxDepth})
	}

	var roots []domain.Employee
	if rootID := normalizeID(opts.RootID); rootID != nil {
		root, err := s.employees.GetByID(ctx, *rootID)
		if err != nil {
			return nil, notFoundOr(err, *rootID)
		}
		roots = []domain.Employee{*root}
	} else {
		var err error
		if roots, err = s.employees.ListRoots(ctx); err != nil {
			return nil, fmt.Errorf("list roots: %w", err)
		}
	}

	forest := make([]*domain.TreeNode, 0, len(roots))
	nodes := make(map[string]*domain.TreeNode, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, root := range roots {
		node := &domain.TreeNode{Employee: root, Subordinates: []*domain.TreeNode{}}
		forest = append(forest, node)
		nodes[root.ID] = node
		frontier = append(frontier, root.ID)
	}

	for depth := 1; len(frontier) > 0 && (opts.MaxDepth == 0 || depth < opts.MaxDepth); depth++ {
		children, err := s.employees.ListByManagers(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("list subordinates: %w", err)
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := nodes[child.ID]; seen {
				return nil, s.traversalError(errCorruptHierarchy, child.ID)
			}
			parent := nodes[*child.ManagerID]
			node := &domain.TreeNode{Employee: child, Subordinates: []*domain.TreeNode{}}
			parent.Subordinates = append(parent.Subordinates, node)
			nodes[child.ID] = node
			next = append(next, child.ID)
		}
		frontier = next
	}
	return forest, nil
}

// SearchByName is a capped, case-insensitive lookup on full_name for pickers.
func (s *HierarchyService) SearchByName(ctx context.Context, query string, limit int) ([]domain.EmployeeRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.EmployeeRef{}, nil
	}
	if limit <= 0 {
		limit = s.limits.SearchLimit
	}
	if limit > s.limits.MaxSearchLimit {
		limit = s.limits.MaxSearchLimit
	}
	refs, err := s.employees.SearchByName(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	if refs == nil {
		refs = []domain.EmployeeRef{}
	}
	return refs, nil
}

// checkManagerAssignment validates making managerID the manager of
// employeeID against the current state of repo.
func checkManagerAssignment(ctx context.Context, repo repository.EmployeeRepository, employeeID string, managerID *string) error {
	if managerID == nil {
		return nil
	}
	if *managerID == employeeID {
		return apperrors.NewSelfReference(employeeID)
	}
	if err := ensureManagerExists(ctx, repo, *managerID); err != nil {
		return err
	}

	found := false
	err := walkDescendants(ctx, repo, employeeID, func(e domain.Employee) bool {
		found = e.ID == *managerID
		return !found
	})
	if err != nil {
		return fmt.Errorf("check cycle: %w", err)
	}
	if found {
		return apperrors.NewCycleDetected(employeeID, *managerID)
	}
	return nil
}

func ensureManagerExists(ctx context.Context, repo repository.EmployeeRepository, managerID string) error {
	ok, err := repo.Exists(ctx, managerID)
	if err != nil {
		return fmt.Errorf("check manager: %w", err)
	}
	if !ok {
		return apperrors.NewManagerNotFound(managerID)
	}
	return nil
}

// walkDescendants visits every descendant of rootID breadth first, one batch
// query per level, until visit returns false. Each employee enters the
// frontier at most once, so the walk is bounded by the number of stored rows.
func walkDescendants(ctx context.Context, repo repository.EmployeeRepository, rootID string, visit func(domain.Employee) bool) error {
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		children, err := repo.ListByManagers(ctx, frontier)
		if err != nil {
			return err
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, dup := seen[child.ID]; dup {
				return errCorruptHierarchy
			}
			seen[child.ID] = struct{}{}
			if !visit(child) {
				return nil
			}
			next = append(next, child.ID)
		}
		frontier = next
	}
	return nil
}

func (s *HierarchyService) traversalError(err error, employeeID string) error {
	if errors.Is(err, errCorruptHierarchy) {
		s.logger.Error("hierarchy traversal aborted", zap.String("employee_id", employeeID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	return err
}

func (s *HierarchyService) publishManagerChanged(ctx context.Context, employeeID string, oldManager, newManager *string) {
	s.publishEvent(ctx, events.Event{
		Type:       events.EventEmployeeManagerChanged,
		EmployeeID: employeeID,
		Payload: events.EmployeeManagerChangedPayload{
			OldManagerID: oldManager,
			NewManagerID: newManager,
		},
	})
}

func (s *HierarchyService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now().UTC()
	_ = s.dispatcher.Publish(ctx, event)
}

type employeePatch struct {
	FullName     *string
	Position     *string
	Email        *string
	HireDate     *time.Time
	ManagerIDSet bool
	ManagerID    *string
}

func validateCreate(input CreateEmployeeInput) (*domain.Employee, error) {
	fullName, err := normalizeRequiredString(input.FullName, "full_name")
	if err != nil {
		return nil, err
	}
	position, err := normalizeRequiredString(input.Position, "position")
	if err != nil {
		return nil, err
	}
	hireDate, err := parseHireDate(input.HireDate)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	return &domain.Employee{
		FullName:  fullName,
		Position:  position,
		Email:     email,
		HireDate:  hireDate,
		ManagerID: normalizeID(input.ManagerID),
	}, nil
}

func validateUpdate(input UpdateEmployeeInput) (employeePatch, error) {
	patch := employeePatch{ManagerIDSet: input.ManagerIDSet}
	if input.FullName != nil {
		v, err := normalizeRequiredString(*input.FullName, "full_name")
		if err != nil {
			return patch, err
		}
		patch.FullName = &v
	}
	if input.Position != nil {
		v, err := normalizeRequiredString(*input.Position, "position")
		if err != nil {
			return patch, err
		}
		patch.Position = &v
	}
	if input.Email != nil {
		v, err := normalizeEmail(*input.Email)
		if err != nil {
			return patch, err
		}
		patch.Email = &v
	}
	if input.HireDate != nil {
		v, err := parseHireDate(*input.HireDate)
		if err != nil {
			return patch, err
		}
		patch.HireDate = &v
	}
	if input.ManagerIDSet {
		patch.ManagerID = normalizeID(input.ManagerID)
	}
	return patch, nil
}

func normalizeRequiredString(raw string, field string) (string, error) {
	value := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(value)
	if length < 1 || length > maxFieldLength {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("%s length must be in range 1..%d", field, maxFieldLength),
			map[string]any{"field": field},
		)
	}
	return value, nil
}

func normalizeEmail(raw string) (string, error) {
	email, err := normalizeRequiredString(raw, "email")
	if err != nil {
		return "", err
	}
	if !govalidator.IsEmail(email) {
		return "", apperrors.NewValidationError("email is not well-formed", map[string]any{"field": "email"})
	}
	return email, nil
}

func parseHireDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, apperrors.NewValidationError("hire_date is required", map[string]any{"field": "hire_date"})
	}
	parsed, err := time.Parse(domain.HireDateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("hire_date must be formatted as YYYY-MM-DD",
			map[string]any{"field": "hire_date"})
	}
	return parsed, nil
}

// normalizeID treats blank ids as absent.
func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func notFoundOr(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("employee", map[string]any{"id": id})
	}
	return err
}

func equalIDPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.ToDomainError(err).Code
}
