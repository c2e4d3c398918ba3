package dto

import (
	"encoding/json"
	"testing"
)

func TestUpdateRequestDistinguishesMissingAndNullManager(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantSet bool
		wantVal *string
	}{
		{name: "missing", body: `{"full_name":"Ada"}`},
		{name: "null", body: `{"manager_id":null}`, wantSet: true},
		{name: "value", body: `{"manager_id":"m1"}`, wantSet: true, wantVal: strPtr("m1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UpdateEmployeeRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if req.ManagerID.Set != tt.wantSet {
				t.Fatalf("Set = %v, want %v", req.ManagerID.Set, tt.wantSet)
			}
			switch {
			case tt.wantVal == nil && req.ManagerID.Value != nil:
				t.Fatalf("expected nil value, got %q", *req.ManagerID.Value)
			case tt.wantVal != nil && (req.ManagerID.Value == nil || *req.ManagerID.Value != *tt.wantVal):
				t.Fatalf("unexpected value %v", req.ManagerID.Value)
			}
		})
	}
}

func TestOptionalStringRejectsNonString(t *testing.T) {
	var req UpdateEmployeeRequest
	if err := json.Unmarshal([]byte(`{"manager_id":42}`), &req); err == nil {
		t.Fatal("expected error for numeric manager_id")
	}
}

func strPtr(s string) *string { return &s }
