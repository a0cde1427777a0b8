package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/timeoff"
)

func TestSeedDemo_Idempotent(t *testing.T) {
	// GIVEN: an empty directory
	ctx := context.Background()
	dir := timeoff.NewDirectory(memory.New())

	// WHEN: seeding twice
	first, err := api.SeedDemo(ctx, dir, nil)
	require.NoError(t, err)
	second, err := api.SeedDemo(ctx, dir, nil)
	require.NoError(t, err)

	// THEN: only the first run registers anyone
	assert.Len(t, first, 3)
	assert.Empty(t, second)

	admin, err := dir.ByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.HasRole(timeoff.RoleAdmin))
}
