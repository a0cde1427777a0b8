/*
seed.go - Demo directory for development and demonstrations

PURPOSE:
  Registers a small directory so a fresh database has an administrator who
  can register everyone else, plus one manager and one employee to try the
  request flow with.

DEMO EMPLOYEES:
  admin     ADMIN, MANAGER, EMPLOYEE   Platform
  manager   MANAGER, EMPLOYEE          Engineering
  employee  EMPLOYEE                   Engineering

NOTE:
  Seeding is skipped when the admin username already exists, so restarting
  with store.seed_demo=true is harmless. Only use in development/demo
  environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

var demoEmployees = []timeoff.NewEmployee{
	{
		Username: "admin", Email: "admin@example.com", FullName: "Demo Admin", Department: "Platform",
		Roles: []timeoff.Role{timeoff.RoleAdmin, timeoff.RoleManager, timeoff.RoleEmployee},
	},
	{
		Username: "manager", Email: "manager@example.com", FullName: "Demo Manager", Department: "Engineering",
		Roles: []timeoff.Role{timeoff.RoleManager, timeoff.RoleEmployee},
	},
	{
		Username: "employee", Email: "employee@example.com", FullName: "Demo Employee", Department: "Engineering",
	},
}

// SeedDemo registers the demo employees unless they are already present.
// It returns the employees it registered.
func SeedDemo(ctx context.Context, dir *timeoff.Directory, logger *zap.Logger) ([]*timeoff.Employee, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	_, err := dir.ByUsername(ctx, demoEmployees[0].Username)
	switch {
	case err == nil:
		logger.Info("demo directory already present, skipping seed")
		return nil, nil
	case !errors.Is(err, generic.ErrNotFound):
		return nil, fmt.Errorf("check demo directory: %w", err)
	}

	seeded := make([]*timeoff.Employee, 0, len(demoEmployees))
	for _, in := range demoEmployees {
		emp, err := dir.Register(ctx, in)
		if err != nil {
			return seeded, fmt.Errorf("seed %s: %w", in.Username, err)
		}
		seeded = append(seeded, emp)
		logger.Info("seeded demo employee",
			zap.String("employee_id", string(emp.ID)),
			zap.String("username", emp.Username),
		)
	}
	return seeded, nil
}
