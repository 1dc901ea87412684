package autoseller

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUserAgent asserts that the component part of the user agent is cleaned
// and truncated.
func TestUserAgent(t *testing.T) {
	Commit = "abc123"
	defer func() {
		Commit = ""
	}()

	require.Equal(
		t, "sellerd/v0.3.1-beta/commit=abc123", UserAgent(""),
	)
	require.Equal(
		t, "sellerd/v0.3.1-beta/commit=abc123,cli", UserAgent(" cli "),
	)
	require.Equal(
		t, "sellerd/v0.3.1-beta/commit=abc123,sellercli",
		UserAgent("seller cli!"),
	)

	long := UserAgent(strings.Repeat("x", 100))
	require.True(t, strings.HasSuffix(long, ","+strings.Repeat("x", 32)))
}
