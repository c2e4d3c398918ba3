package dto

import (
	"bytes"
	"encoding/json"
	"time"
)

// OptionalString records whether a JSON field was present. Set is true for
// an explicit null as well, in which case Value is nil.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// CreateEmployeeRequest payload.
type CreateEmployeeRequest struct {
	FullName  string  `json:"full_name"`
	Position  string  `json:"position"`
	HireDate  string  `json:"hire_date"`
	Email     string  `json:"email"`
	ManagerID *string `json:"manager_id"`
}

// UpdateEmployeeRequest payload. Omitted fields are left unchanged.
type UpdateEmployeeRequest struct {
	FullName  *string        `json:"full_name"`
	Position  *string        `json:"position"`
	HireDate  *string        `json:"hire_date"`
	Email     *string        `json:"email"`
	ManagerID OptionalString `json:"manager_id"`
}

// ReassignManagerRequest payload. A null or missing manager_id moves the
// employee to top-level.
type ReassignManagerRequest struct {
	ManagerID *string `json:"manager_id"`
}

// EmployeeResponse is the wire form of an employee.
type EmployeeResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Position  string    `json:"position"`
	HireDate  string    `json:"hire_date"`
	Email     string    `json:"email"`
	ManagerID *string   `json:"manager_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmployeeRefResponse is the compact form used by name search.
type EmployeeRefResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// TreeNodeResponse nests an employee with its subordinates.
type TreeNodeResponse struct {
	EmployeeResponse
	Subordinates []*TreeNodeResponse `json:"subordinates"`
}

// PageMeta describes a paginated listing.
type PageMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}
