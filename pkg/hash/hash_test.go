package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheck(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("S3cret#pass")
	require.NoError(t, err)
	assert.NotEqual(t, "S3cret#pass", h)
	assert.True(t, CheckPassword(h, "S3cret#pass"))
	assert.False(t, CheckPassword(h, "other"))
	assert.False(t, CheckPassword("not-a-hash", "S3cret#pass"))
}
