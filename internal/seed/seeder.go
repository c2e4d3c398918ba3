// Package seed fills the directory with generated employees.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/spec-kit/employee-directory/internal/domain"
	"github.com/spec-kit/employee-directory/internal/service"
)

// Creator stores one employee. HierarchyService satisfies it.
type Creator interface {
	Create(ctx context.Context, input service.CreateEmployeeInput) (*domain.Employee, error)
}

// TreeOptions shapes a layered hierarchy. MaxDepth counts the levels below
// the top managers; Limit caps the total number of employees, zero for none.
type TreeOptions struct {
	TopManagers int
	MinFanOut   int
	MaxFanOut   int
	MaxDepth    int
	Limit       int
}

// DefaultTreeOptions returns 10 top managers with 5 to 10 reports each,
// seven levels deep.
func DefaultTreeOptions() TreeOptions {
	return TreeOptions{TopManagers: 10, MinFanOut: 5, MaxFanOut: 10, MaxDepth: 7}
}

// BulkOptions controls flat random seeding.
type BulkOptions struct {
	Count         int
	ProgressEvery int
}

// DefaultBulkOptions returns 50000 employees with progress every 1000.
func DefaultBulkOptions() BulkOptions {
	return BulkOptions{Count: 50000, ProgressEvery: 1000}
}

// Seeder generates employees through a Creator.
type Seeder struct {
	creator Creator
	faker   *gofakeit.Faker
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a seeder whose output is reproducible for a given seed.
func New(creator Creator, seed uint64, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		creator: creator,
		faker:   gofakeit.New(seed),
		logger:  logger,
		now:     time.Now,
	}
}

var startOfCentury = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type pending struct {
	managerID string
	level     int
}

// Tree creates the top managers, then works through a FIFO of managers
// giving each a random number of reports until MaxDepth or Limit is reached.
// It returns the number of employees created.
func (s *Seeder) Tree(ctx context.Context, opts TreeOptions) (int, error) {
	if opts.TopManagers <= 0 || opts.MinFanOut < 0 || opts.MaxFanOut < opts.MinFanOut || opts.MaxDepth < 0 {
		return 0, fmt.Errorf("invalid tree options %+v", opts)
	}

	created := 0
	full := func() bool { return opts.Limit > 0 && created >= opts.Limit }
	since := startOfCentury

	queue := make([]pending, 0, opts.TopManagers)
	for i := 0; i < opts.TopManagers && !full(); i++ {
		employee, err := s.create(ctx, "Top Manager", since, nil)
		if err != nil {
			return created, err
		}
		created++
		queue = append(queue, pending{managerID: employee.ID, level: 1})
	}

	for len(queue) > 0 && !full() {
		next := queue[0]
		queue = queue[1:]
		if next.level > opts.MaxDepth {
			continue
		}

		position := fmt.Sprintf("Level %d Employee", next.level)
		reports := s.faker.Number(opts.MinFanOut, opts.MaxFanOut)
		for i := 0; i < reports && !full(); i++ {
			managerID := next.managerID
			employee, err := s.create(ctx, position, since, &managerID)
			if err != nil {
				return created, err
			}
			created++
			queue = append(queue, pending{managerID: employee.ID, level: next.level + 1})
			if created%1000 == 0 {
				s.logger.Info("employees created", zap.Int("count", created), zap.Int("level", next.level))
			}
		}
	}

	s.logger.Info("tree seeding completed", zap.Int("created", created))
	return created, nil
}

// Bulk creates opts.Count employees, each reporting to a uniformly chosen
// earlier employee or to nobody.
func (s *Seeder) Bulk(ctx context.Context, opts BulkOptions) (int, error) {
	if opts.Count < 0 {
		return 0, errors.New("count must not be negative")
	}
	since := s.startOfDecade()

	// Slot zero stands for "no manager".
	managers := make([]*string, 1, opts.Count+1)
	for i := 0; i < opts.Count; i++ {
		manager := managers[s.faker.Number(0, len(managers)-1)]
		employee, err := s.create(ctx, s.faker.JobTitle(), since, manager)
		if err != nil {
			return i, err
		}
		id := employee.ID
		managers = append(managers, &id)

		if opts.ProgressEvery > 0 && i%opts.ProgressEvery == 0 {
			s.logger.Info("employees created", zap.Int("count", i))
		}
	}

	s.logger.Info("bulk seeding completed", zap.Int("created", opts.Count))
	return opts.Count, nil
}

func (s *Seeder) create(ctx context.Context, position string, hiredSince time.Time, managerID *string) (*domain.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hired := s.faker.DateRange(hiredSince, s.now())
	employee, err := s.creator.Create(ctx, service.CreateEmployeeInput{
		FullName:  s.faker.Name(),
		Position:  position,
		HireDate:  hired.Format(domain.HireDateLayout),
		Email:     cleanEmail(s.faker.Email()),
		ManagerID: managerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return employee, nil
}

func (s *Seeder) startOfDecade() time.Time {
	year := s.now().Year()
	return time.Date(year-year%10, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// cleanEmail drops characters such as apostrophes that faker can carry over
// from surnames into the domain part.
func cleanEmail(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '@', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, raw)
}
