package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/storetest"
	"github.com/warp/leave-engine/timeoff"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) timeoff.TxStore {
		return memory.New()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	// GIVEN: a stored employee
	// WHEN: the caller mutates the returned value
	// THEN: the stored record is unaffected
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, &timeoff.Employee{
		ID: "emp-1", Username: "alice", Email: "alice@example.com",
		Roles: []timeoff.Role{timeoff.RoleEmployee},
	}))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	got.Roles[0] = timeoff.RoleAdmin
	got.Username = "mallory"

	again, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
	assert.Equal(t, []timeoff.Role{timeoff.RoleEmployee}, again.Roles)
}
