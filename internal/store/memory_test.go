package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	lines := sampleLines()
	require.NoError(t, st.Save(ctx, lines))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, lines, loaded)

	// The stored snapshot must be isolated from caller mutations.
	loaded[0].Quantity = 99
	again, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].Quantity)

	require.NoError(t, st.Clear(ctx))
	_, err = st.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
