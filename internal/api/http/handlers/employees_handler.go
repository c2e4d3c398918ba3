package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/employee-directory/internal/api/dto"
	"github.com/spec-kit/employee-directory/internal/domain"
	"github.com/spec-kit/employee-directory/internal/service"
	apperrors "github.com/spec-kit/employee-directory/pkg/util/errorutil"
)

// EmployeesHandler exposes the employee directory and its hierarchy.
type EmployeesHandler struct {
	hierarchy *service.HierarchyService
}

// NewEmployeesHandler constructs handler.
func NewEmployeesHandler(hierarchy *service.HierarchyService) *EmployeesHandler {
	return &EmployeesHandler{hierarchy: hierarchy}
}

// List handles GET /employees.
func (h *EmployeesHandler) List(c *fiber.Ctx) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		return err
	}

	result, err := h.hierarchy.List(c.UserContext(), service.ListEmployeesInput{
		Query:    c.Query("q"),
		Sort:     c.Query("sort"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": employeeResponses(result.Employees),
		"meta": dto.PageMeta{Page: result.Page, PageSize: result.PageSize, Total: result.Total},
	})
}

// Create handles POST /employees.
func (h *EmployeesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateEmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}

	employee, err := h.hierarchy.Create(c.UserContext(), service.CreateEmployeeInput{
		FullName:  req.FullName,
		Position:  req.Position,
		HireDate:  req.HireDate,
		Email:     req.Email,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		return err
	}
	c.Location("/employees/" + employee.ID)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": employeeResponse(employee)})
}

// Get handles GET /employees/:id.
func (h *EmployeesHandler) Get(c *fiber.Ctx) error {
	employee, err := h.hierarchy.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponse(employee)})
}

// Update handles PATCH /employees/:id.
func (h *EmployeesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateEmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}

	employee, err := h.hierarchy.Update(c.UserContext(), c.Params("id"), service.UpdateEmployeeInput{
		FullName:     req.FullName,
		Position:     req.Position,
		HireDate:     req.HireDate,
		Email:        req.Email,
		ManagerIDSet: req.ManagerID.Set,
		ManagerID:    req.ManagerID.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponse(employee)})
}

// Delete handles DELETE /employees/:id.
func (h *EmployeesHandler) Delete(c *fiber.Ctx) error {
	if err := h.hierarchy.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ReassignManager handles PUT /employees/:id/manager.
func (h *EmployeesHandler) ReassignManager(c *fiber.Ctx) error {
	var req dto.ReassignManagerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidPayload(err)
		}
	}

	employee, err := h.hierarchy.ReassignManager(c.UserContext(), c.Params("id"), req.ManagerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponse(employee)})
}

// Subordinates handles GET /employees/:id/subordinates.
func (h *EmployeesHandler) Subordinates(c *fiber.Ctx) error {
	transitive := parseBoolQuery(c, "transitive", false)
	employees, err := h.hierarchy.ListSubordinates(c.UserContext(), c.Params("id"), transitive)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponses(employees)})
}

// Ancestors handles GET /employees/:id/ancestors.
func (h *EmployeesHandler) Ancestors(c *fiber.Ctx) error {
	chain, err := h.hierarchy.Ancestors(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponses(chain)})
}

// Roots handles GET /employees/roots.
func (h *EmployeesHandler) Roots(c *fiber.Ctx) error {
	roots, err := h.hierarchy.ListRoots(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": employeeResponses(roots)})
}

// Tree handles GET /employees/tree.
func (h *EmployeesHandler) Tree(c *fiber.Ctx) error {
	maxDepth, err := queryInt(c, "max_depth")
	if err != nil {
		return err
	}
	opts := service.TreeOptions{MaxDepth: maxDepth}
	if rootID := c.Query("root_id"); rootID != "" {
		opts.RootID = &rootID
	}

	forest, err := h.hierarchy.Tree(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": treeResponses(forest)})
}

// Search handles GET /employees/search.
func (h *EmployeesHandler) Search(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	refs, err := h.hierarchy.SearchByName(c.UserContext(), c.Query("q"), limit)
	if err != nil {
		return err
	}
	resp := make([]dto.EmployeeRefResponse, 0, len(refs))
	for _, ref := range refs {
		resp = append(resp, dto.EmployeeRefResponse{ID: ref.ID, FullName: ref.FullName})
	}
	return c.JSON(fiber.Map{"data": resp})
}

func invalidPayload(err error) error {
	return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key+" must be an integer", map[string]any{key: raw})
	}
	return val, nil
}

func parseBoolQuery(c *fiber.Ctx, key string, defaultVal bool) bool {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func employeeResponse(employee *domain.Employee) dto.EmployeeResponse {
	return dto.EmployeeResponse{
		ID:        employee.ID,
		FullName:  employee.FullName,
		Position:  employee.Position,
		HireDate:  employee.HireDate.Format(domain.HireDateLayout),
		Email:     employee.Email,
		ManagerID: employee.ManagerID,
		CreatedAt: employee.CreatedAt,
		UpdatedAt: employee.UpdatedAt,
	}
}

func employeeResponses(employees []domain.Employee) []dto.EmployeeResponse {
	resp := make([]dto.EmployeeResponse, 0, len(employees))
	for i := range employees {
		resp = append(resp, employeeResponse(&employees[i]))
	}
	return resp
}

// treeResponses mirrors the domain forest level by level.
func treeResponses(nodes []*domain.TreeNode) []*dto.TreeNodeResponse {
	type pair struct {
		src *domain.TreeNode
		dst *dto.TreeNodeResponse
	}

	roots := make([]*dto.TreeNodeResponse, 0, len(nodes))
	queue := make([]pair, 0, len(nodes))
	for _, node := range nodes {
		out := &dto.TreeNodeResponse{EmployeeResponse: employeeResponse(&node.Employee)}
		roots = append(roots, out)
		queue = append(queue, pair{src: node, dst: out})
	}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		next.dst.Subordinates = make([]*dto.TreeNodeResponse, 0, len(next.src.Subordinates))
		for _, child := range next.src.Subordinates {
			out := &dto.TreeNodeResponse{EmployeeResponse: employeeResponse(&child.Employee)}
			next.dst.Subordinates = append(next.dst.Subordinates, out)
			queue = append(queue, pair{src: child, dst: out})
		}
	}
	return roots
}
