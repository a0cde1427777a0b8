package timeoff_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/timeoff"
)

func TestRegister_Defaults(t *testing.T) {
	f := newFixture(t)

	emp, err := f.directory.Register(context.Background(), timeoff.NewEmployee{
		Username: "  alice ", Email: "alice@example.com", FullName: "Alice", Department: "Ops",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, emp.ID)
	assert.Equal(t, "alice", emp.Username)
	assert.Equal(t, []timeoff.Role{timeoff.RoleEmployee}, emp.Roles)
	assert.True(t, emp.LeaveBalance.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, testNow, emp.CreatedAt)

	byName, err := f.directory.ByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, emp.ID, byName.ID)
}

func TestRegister_StartingBalanceOption(t *testing.T) {
	dir := timeoff.NewDirectory(memory.New(), timeoff.WithStartingBalance(decimal.NewFromFloat(12.5)))

	emp, err := dir.Register(context.Background(), timeoff.NewEmployee{
		Username: "bob", Email: "bob@example.com", FullName: "Bob",
	})

	require.NoError(t, err)
	assert.Equal(t, "12.5", emp.LeaveBalance.String())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	valid := timeoff.NewEmployee{Username: "carol", Email: "carol@example.com", FullName: "Carol"}

	tests := map[string]func(*timeoff.NewEmployee){
		"short username": func(e *timeoff.NewEmployee) { e.Username = "ab" },
		"long username":  func(e *timeoff.NewEmployee) { e.Username = strings.Repeat("a", 51) },
		"missing email":  func(e *timeoff.NewEmployee) { e.Email = "" },
		"bad email":      func(e *timeoff.NewEmployee) { e.Email = "carol-at-example" },
		"missing name":   func(e *timeoff.NewEmployee) { e.FullName = "  " },
		"unknown role":   func(e *timeoff.NewEmployee) { e.Roles = []timeoff.Role{"OWNER"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.directory.Register(context.Background(), in)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
		})
	}
}

func TestRegister_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.directory.Register(ctx, timeoff.NewEmployee{Username: "dave", Email: "dave@example.com", FullName: "Dave"})
	require.NoError(t, err)

	_, err = f.directory.Register(ctx, timeoff.NewEmployee{Username: "dave", Email: "other@example.com", FullName: "Dave"})
	assert.ErrorIs(t, err, generic.ErrConflict)

	_, err = f.directory.Register(ctx, timeoff.NewEmployee{Username: "david", Email: "dave@example.com", FullName: "Dave"})
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestDirectory_LookupNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.directory.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = f.directory.ByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
