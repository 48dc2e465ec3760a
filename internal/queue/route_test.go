package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilay/reportgen/internal/model"
)

func TestResolve(t *testing.T) {
	r, err := Resolve(model.JobTypeReportGenerator)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeStandard, r.TaskType)
	assert.Equal(t, QueueStandard, r.Queue)

	r, err = Resolve(model.JobTypeMailer)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeMailer, r.TaskType)
	assert.Equal(t, QueueMailer, r.Queue)
}

func TestResolveUnknownType(t *testing.T) {
	_, err := Resolve(model.JobType("ARCHIVER"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Contains(t, err.Error(), "ARCHIVER")
}
