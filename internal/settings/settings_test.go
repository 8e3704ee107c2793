package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root, Defaults(root))

	// First load returns defaults.
	s, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, root, s.WorkspaceRoot)
	require.Equal(t, "cinematic", s.DefaultStyle)

	s.DefaultStyle = "neon_noir"
	s.DefaultVideoModel = "kling"
	require.NoError(t, store.Save(context.Background(), s))

	back, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "neon_noir", back.DefaultStyle)
	require.Equal(t, "kling", back.DefaultVideoModel)
}

func TestMergeFillsBlanks(t *testing.T) {
	defaults := Defaults("/ws")
	merged := merge(&Settings{DefaultStyle: "monochrome"}, defaults)
	require.Equal(t, "monochrome", merged.DefaultStyle)
	require.Equal(t, "/ws", merged.WorkspaceRoot)
	require.Equal(t, "openai", merged.DefaultLLM)

	require.Equal(t, defaults, merge(nil, defaults))
}
