package cryptorand_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/cryptorand"
)

func TestStringCharset(t *testing.T) {
	t.Parallel()

	t.Run("Length", func(t *testing.T) {
		t.Parallel()
		for _, size := range []int{0, 1, 10, 64} {
			s, err := cryptorand.String(size)
			require.NoError(t, err)
			require.Len(t, s, size)
		}
	})

	t.Run("StaysInCharset", func(t *testing.T) {
		t.Parallel()
		s, err := cryptorand.StringCharset(cryptorand.Hex, 256)
		require.NoError(t, err)
		for _, r := range s {
			require.True(t, strings.ContainsRune(cryptorand.Hex, r), "rune %q outside charset", r)
		}
	})

	t.Run("EmptyCharset", func(t *testing.T) {
		t.Parallel()
		_, err := cryptorand.StringCharset("", 10)
		require.Error(t, err)
	})

	t.Run("Unique", func(t *testing.T) {
		t.Parallel()
		seen := map[string]struct{}{}
		for i := 0; i < 100; i++ {
			s, err := cryptorand.HexString(16)
			require.NoError(t, err)
			_, dup := seen[s]
			require.False(t, dup, "duplicate random string %q", s)
			seen[s] = struct{}{}
		}
	})
}
