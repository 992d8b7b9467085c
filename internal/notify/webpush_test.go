package notify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	raw, err := buildPayload("Ann Lee", "see you at the depot", "https://connect.example.org")
	require.NoError(t, err)

	var payload pushPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "New message from Ann Lee", payload.Title)
	require.Equal(t, "see you at the depot", payload.Body)
	require.Equal(t, "https://connect.example.org", payload.URL)
}

func TestTruncateLongBody(t *testing.T) {
	long := strings.Repeat("a", bodyLimit+10)
	got := truncate(long, bodyLimit)
	require.Equal(t, strings.Repeat("a", bodyLimit)+"...", got)
}

func TestTruncateShortBodyUnchanged(t *testing.T) {
	require.Equal(t, "short", truncate("short", bodyLimit))
}

func TestTruncateCountsRunes(t *testing.T) {
	// Multibyte text must be cut on rune boundaries, not bytes.
	text := strings.Repeat("ю", bodyLimit+1)
	got := truncate(text, bodyLimit)
	require.Equal(t, strings.Repeat("ю", bodyLimit)+"...", got)
}

func TestNotifierDisabledWithoutKeys(t *testing.T) {
	n := NewNotifier(Config{}, nil)
	_, ok := n.(noopNotifier)
	require.True(t, ok, "missing VAPID keys must disable push")
}
