package archiver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webkeep/webkeep/internal/archival/command"
)

func TestSingleFile_Archive_Success(t *testing.T) {
	dir := t.TempDir()
	runner := command.NewRunner(newFakeCommandLogger())
	s := &SingleFile{
		Base:    Base{DataDir: dir},
		Runner:  runner,
		Bin:     `sh -c 'for a in "$@"; do last="$a"; done; echo fake-singlefile-output > "$last"' --`,
		Timeout: 5 * time.Second,
	}

	result, err := s.Archive(context.Background(), "https://example.com", "item-1")
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestSingleFile_Archive_Timeout(t *testing.T) {
	dir := t.TempDir()
	runner := command.NewRunner(newFakeCommandLogger())
	s := &SingleFile{
		Base:    Base{DataDir: dir},
		Runner:  runner,
		Bin:     "sh -c 'sleep 5' --",
		Timeout: 50 * time.Millisecond,
	}

	result, err := s.Archive(context.Background(), "https://example.com", "item-1")
	require.NoError(t, err)
	require.False(t, result.Success)
}
