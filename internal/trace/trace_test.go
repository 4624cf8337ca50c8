package trace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationID(t *testing.T) {
	a := NewOperationID("msg")
	b := NewOperationID("msg")
	assert.True(t, strings.HasPrefix(a, "msg_"))
	assert.Len(t, a, len("msg_")+16)
	assert.NotEqual(t, a, b)
}

func TestOperationIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, OperationID(ctx))
	assert.Equal(t, "sweep_1", OperationID(WithOperationID(ctx, "sweep_1")))
}

func TestRun(t *testing.T) {
	before := GetMetrics()

	var seen string
	err := Run(context.Background(), "msg", "mirror_sync", func(ctx context.Context) error {
		seen = OperationID(ctx)
		return nil
	}, "allocation_id", "a1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(seen, "msg_"))

	boom := errors.New("boom")
	err = Run(context.Background(), "msg", "mirror_sync", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	after := GetMetrics()
	assert.Equal(t, before.TotalOperations+2, after.TotalOperations)
	assert.Equal(t, before.FailedOperations+1, after.FailedOperations)
}
