package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docuquery/internal/config"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"ingest", "query", "delete", "clear", "status", "init"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	// Given a target path
	path := filepath.Join(t.TempDir(), "config.yaml")

	// When running init
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", path})
	require.NoError(t, root.Execute())

	// Then the written file loads and validates
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendOllama, cfg.Providers.Embedding.Backend)
}

func TestInit_RefusesOverwriteWithoutForce(t *testing.T) {
	// Given an existing config
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.NewConfig().WriteYAML(path))

	// When running init again without --force
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", path})
	err := root.Execute()

	// Then it refuses
	assert.ErrorContains(t, err, "already exists")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "collapsed whitespace", truncate("collapsed   \n whitespace", 40))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 5))
}
