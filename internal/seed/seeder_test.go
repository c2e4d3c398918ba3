package seed

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spec-kit/employee-directory/internal/config"
	"github.com/spec-kit/employee-directory/internal/domain"
	"github.com/spec-kit/employee-directory/internal/repository"
	"github.com/spec-kit/employee-directory/internal/service"
)

func newSeeder(t *testing.T, seed uint64) (*Seeder, *service.HierarchyService, *repository.MemoryEmployeeRepository) {
	t.Helper()
	repo := repository.NewMemoryEmployeeRepository()
	svc := service.NewHierarchyService(config.Config{}, service.HierarchyDependencies{EmployeeRepo: repo})
	s := New(svc, seed, nil)
	s.now = func() time.Time { return time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC) }
	return s, svc, repo
}

func TestTreeShape(t *testing.T) {
	s, svc, repo := newSeeder(t, 7)
	ctx := context.Background()

	created, err := s.Tree(ctx, TreeOptions{TopManagers: 2, MinFanOut: 2, MaxFanOut: 2, MaxDepth: 2})
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if created != 14 {
		t.Fatalf("expected 2 + 4 + 8 employees, got %d", created)
	}
	if count, _ := repo.Count(ctx); count != created {
		t.Fatalf("store holds %d rows, seeder reported %d", count, created)
	}

	roots, _ := svc.ListRoots(ctx)
	if len(roots) != 2 {
		t.Fatalf("expected 2 top managers, got %d", len(roots))
	}
	for _, root := range roots {
		if root.Position != "Top Manager" {
			t.Fatalf("unexpected root position %q", root.Position)
		}
		direct, _ := svc.ListSubordinates(ctx, root.ID, false)
		if len(direct) != 2 {
			t.Fatalf("expected fan-out 2, got %d", len(direct))
		}
		for _, child := range direct {
			if child.Position != "Level 1 Employee" {
				t.Fatalf("unexpected level 1 position %q", child.Position)
			}
		}
		all, _ := svc.ListSubordinates(ctx, root.ID, true)
		for _, e := range all {
			chain, err := svc.Ancestors(ctx, e.ID)
			if err != nil {
				t.Fatalf("Ancestors: %v", err)
			}
			if len(chain) > 2 {
				t.Fatalf("employee %s is %d levels deep", e.ID, len(chain))
			}
		}
	}
}

func TestTreeRespectsLimit(t *testing.T) {
	s, _, _ := newSeeder(t, 1)
	opts := DefaultTreeOptions()
	opts.Limit = 25

	created, err := s.Tree(context.Background(), opts)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if created != 25 {
		t.Fatalf("expected limit of 25, got %d", created)
	}
}

func TestTreeRejectsInvalidOptions(t *testing.T) {
	s, _, _ := newSeeder(t, 1)
	if _, err := s.Tree(context.Background(), TreeOptions{TopManagers: 1, MinFanOut: 5, MaxFanOut: 2}); err == nil {
		t.Fatal("expected error when max fan-out is below min")
	}
}

func TestBulkIsReproducible(t *testing.T) {
	names := func() []string {
		s, svc, _ := newSeeder(t, 99)
		created, err := s.Bulk(context.Background(), BulkOptions{Count: 30, ProgressEvery: 10})
		if err != nil {
			t.Fatalf("Bulk: %v", err)
		}
		if created != 30 {
			t.Fatalf("expected 30 employees, got %d", created)
		}
		page, err := svc.List(context.Background(), service.ListEmployeesInput{Sort: "full_name"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		out := make([]string, 0, len(page.Employees))
		for _, e := range page.Employees {
			if e.HireDate.Before(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("hire date %s is outside this decade", e.HireDate.Format(domain.HireDateLayout))
			}
			out = append(out, e.FullName+"|"+e.Position)
		}
		sort.Strings(out)
		return out
	}

	if diff := cmp.Diff(names(), names()); diff != "" {
		t.Fatalf("same seed produced different data (-first +second):\n%s", diff)
	}
}

type failingCreator struct{ after int }

func (f *failingCreator) Create(_ context.Context, input service.CreateEmployeeInput) (*domain.Employee, error) {
	if f.after == 0 {
		return nil, errors.New("database unavailable")
	}
	f.after--
	return &domain.Employee{ID: input.FullName}, nil
}

func TestBulkStopsOnError(t *testing.T) {
	s := New(&failingCreator{after: 3}, 1, nil)
	created, err := s.Bulk(context.Background(), BulkOptions{Count: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if created != 3 {
		t.Fatalf("expected 3 employees before the failure, got %d", created)
	}
}

func TestCleanEmail(t *testing.T) {
	if got := cleanEmail("Shaun.O'Keefe@o'keefe.com"); got != "shaun.okeefe@okeefe.com" {
		t.Fatalf("unexpected email %q", got)
	}
}
