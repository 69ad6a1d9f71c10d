package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCreateAndList(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "--path", dir, "--log-level", "error", "create", "add_order_tags", "Tag orders")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	out, err := execute(t, "--path", dir, "--log-level", "error", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "add_order_tags  Tag orders")
}

func TestListShippedMigrations(t *testing.T) {
	out, err := execute(t, "--path", "../../migrations", "--log-level", "error", "list")
	require.NoError(t, err)
	assert.Equal(t,
		"  - 20240115000001_create_marketplace_orders  Marketplace product orders, one row per (channel, order_id)\n"+
			"  - 20240115000002_create_order_sync_runs  Audit log of order sync runs\n",
		out)
}

func TestListRejectsBrokenPair(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_orphan.up.sql"), []byte("-- Migration: orphan\n"), 0o644))

	_, err := execute(t, "--path", dir, "--log-level", "error", "list")
	assert.ErrorContains(t, err, "has no down file")
}

func TestArgumentValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"create without name", []string{"create"}},
		{"step without count", []string{"step"}},
		{"up with extra argument", []string{"up", "now"}},
		{"step with bad count", []string{"step", "one"}},
		{"goto with bad version", []string{"goto", "-1"}},
		{"force with bad version", []string{"force", "x"}},
		{"drop without confirm", []string{"drop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--path", dir, "--log-level", "error"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestResolveMigrationsPath(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveMigrationsPath(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err = resolveMigrationsPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, defaultMigrationsPath), got)
}
