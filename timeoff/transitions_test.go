package timeoff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

func TestNextStatus_Table(t *testing.T) {
	tests := []struct {
		from   timeoff.Status
		action timeoff.Action
		want   timeoff.Status
		ok     bool
	}{
		{timeoff.StatusPending, timeoff.ActionApprove, timeoff.StatusApproved, true},
		{timeoff.StatusPending, timeoff.ActionReject, timeoff.StatusRejected, true},
		{timeoff.StatusPending, timeoff.ActionCancel, timeoff.StatusCancelled, true},
		{timeoff.StatusApproved, timeoff.ActionCancel, timeoff.StatusCancelled, true},
		{timeoff.StatusRejected, timeoff.ActionCancel, timeoff.StatusCancelled, true},
		{timeoff.StatusCancelled, timeoff.ActionCancel, timeoff.StatusCancelled, true},
		{timeoff.StatusApproved, timeoff.ActionApprove, "", false},
		{timeoff.StatusApproved, timeoff.ActionReject, "", false},
		{timeoff.StatusRejected, timeoff.ActionApprove, "", false},
		{timeoff.StatusCancelled, timeoff.ActionReject, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := timeoff.NextStatus(tt.from, tt.action)
			if !tt.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, generic.ErrAlreadyDecided)
				var te *timeoff.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.from, te.From)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatusAndLeaveType(t *testing.T) {
	s, err := timeoff.ParseStatus(" approved ")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, s)

	lt, err := timeoff.ParseLeaveType("maternity")
	require.NoError(t, err)
	assert.Equal(t, timeoff.LeaveMaternity, lt)

	_, err = timeoff.ParseLeaveType("vacation")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = timeoff.ParseStatus("done")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestRoles_RoundTrip(t *testing.T) {
	roles := []timeoff.Role{timeoff.RoleManager, timeoff.RoleEmployee}
	assert.Equal(t, "MANAGER,EMPLOYEE", timeoff.JoinRoles(roles))
	assert.Equal(t, roles, timeoff.SplitRoles("MANAGER, EMPLOYEE"))
	assert.Nil(t, timeoff.SplitRoles(""))
}
