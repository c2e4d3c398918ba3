package domain

import "time"

// HireDateLayout is the wire and storage format for hire dates.
const HireDateLayout = "2006-01-02"

// Employee is a node in the reporting hierarchy. ManagerID is nil for
// top-level employees.
type Employee struct {
	ID        string
	FullName  string
	Position  string
	Email     string
	HireDate  time.Time
	ManagerID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot reports whether the employee has no manager.
func (e Employee) IsRoot() bool {
	return e.ManagerID == nil
}

// EmployeeRef is the lightweight projection returned by name lookups.
type EmployeeRef struct {
	ID       string
	FullName string
}

// TreeNode is an employee together with its direct reports.
type TreeNode struct {
	Employee     Employee
	Subordinates []*TreeNode
}
