package leader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCellReadClaimClear(t *testing.T) {
	ctx := context.Background()
	cell := NewMemoryCell()

	_, ok, err := cell.Read(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cell.Claim(ctx, Record{TabID: "tab-1", HeartbeatMs: 1000}))
	rec, ok, err := cell.Read(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tab-1", rec.TabID)

	require.NoError(t, cell.Clear(ctx))
	_, ok, err = cell.Read(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCellChangedFiresOnClaimAndClear(t *testing.T) {
	ctx := context.Background()
	cell := NewMemoryCell()
	changed := cell.Changed()

	require.NoError(t, cell.Claim(ctx, Record{TabID: "tab-1", HeartbeatMs: 1}))
	select {
	case <-changed:
	default:
		t.Fatal("expected Changed to fire after Claim")
	}

	require.NoError(t, cell.Clear(ctx))
	select {
	case <-changed:
	default:
		t.Fatal("expected Changed to fire after Clear")
	}
}
