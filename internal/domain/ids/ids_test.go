package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testULID = "01HYX3KQW7ERTV9XNBM2P8QJZF"

func TestNewReturnsValid(t *testing.T) {
	require.NoError(t, ValidateULID(New()))
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		value := New()
		_, dup := seen[value]
		require.False(t, dup, "duplicate ULID %s", value)
		seen[value] = struct{}{}
	}
}

func TestIsULIDAndValidateULID(t *testing.T) {
	require.True(t, IsULID(testULID))
	require.True(t, IsULID(" "+testULID+" "))
	require.NoError(t, ValidateULID(testULID))

	require.False(t, IsULID("not-a-ulid"))
	require.False(t, IsULID(""))
	require.ErrorIs(t, ValidateULID("not-a-ulid"), ErrInvalidULID)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, testULID, Normalize("  01hyx3kqw7ertv9xnbm2p8qjzf "))
}
