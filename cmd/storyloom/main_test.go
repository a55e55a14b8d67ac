package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "paths:\n  output_dir: " + dir + "\n  naming: uuid\nlog:\n  level: error\n"
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(cfg), 0o600))
	t.Setenv("STORYLOOM_CONFIG", file)
	return dir
}

func TestGenerateDryRunWritesRun(t *testing.T) {
	out := useConfig(t)
	ctx := context.Background()

	err := run(ctx, []string{"generate",
		"-premise", "A lamplighter's apprentice in a drowned city must relight the great lantern.",
		"-genre", "Fantasy", "-chapters", "2", "-dry-run", "-export"})
	require.NoError(t, err)

	chapters, err := filepath.Glob(filepath.Join(out, "sessions", "*", "chapters", "chapter-*.md"))
	require.NoError(t, err)
	assert.Len(t, chapters, 2)

	manuscripts, err := filepath.Glob(filepath.Join(out, "sessions", "*", "manuscript.md"))
	require.NoError(t, err)
	require.Len(t, manuscripts, 1)
	doc, err := os.ReadFile(manuscripts[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc), "# The Lantern Keeper"))

	_, err = os.Stat(filepath.Join(out, "runs.db"))
	assert.NoError(t, err)

	require.NoError(t, run(ctx, []string{"runs", "-limit", "5"}))

	dirs, err := filepath.Glob(filepath.Join(out, "sessions", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	require.NoError(t, run(ctx, []string{"runs", "-show", filepath.Base(dirs[0])}))
	assert.ErrorContains(t, run(ctx, []string{"runs", "-show", "no-such-run"}), "no archived chapters")
}

func TestExportMissingRun(t *testing.T) {
	useConfig(t)
	err := run(context.Background(), []string{"export", "no-such-run"})
	assert.Error(t, err)
}

func TestRunRejectsBadInput(t *testing.T) {
	useConfig(t)
	ctx := context.Background()

	assert.Error(t, run(ctx, nil))
	assert.ErrorContains(t, run(ctx, []string{"publish"}), "unknown command")
	assert.Error(t, run(ctx, []string{"generate", "-genre", "Fantasy", "-dry-run"}))
	assert.Error(t, run(ctx, []string{"generate", "-premise", "x", "-genre", "Cookbook", "-dry-run"}))
}
