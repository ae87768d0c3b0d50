package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/rdf/rdftest"
)

const peopleYAML = `
title: CLI test
collections:
  - id: people
    title: People
    feeds:
      - type: csv
        source: people.csv
        timestamp: changed
        rdf_type: http://xmlns.com/foaf/0.1/Person
        subject: http://example.org/person/%s
        id_field: id
        columns:
          - name: name
            property: http://xmlns.com/foaf/0.1/name
`

const peopleCSV = `id,name,changed
1,Ann,2020-01-01T00:00:00Z
2,Bob,2020-01-02T00:00:00Z
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.csv"), []byte(peopleCSV), 0o644))
	path := filepath.Join(dir, "sdshare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(peopleYAML), 0o644))
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	return rootCmd.Execute()
}

func TestSetupLogging(t *testing.T) {
	require.NoError(t, setupLogging(config.Settings{LogLevel: "debug", LogFormat: "json"}))
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	file := filepath.Join(t.TempDir(), "sdshare.log")
	require.NoError(t, setupLogging(config.Settings{LogLevel: "info", LogFile: file}))
	log.Info("hello")
	_, err := os.Stat(file)
	assert.NoError(t, err)

	assert.Error(t, setupLogging(config.Settings{LogLevel: "loud"}))
	assert.Error(t, setupLogging(config.Settings{LogLevel: "info", LogFormat: "xml"}))
	require.NoError(t, setupLogging(config.Settings{LogLevel: "error"}))
}

func TestCheckCommand(t *testing.T) {
	assert.NoError(t, run(t, "check", "-c", writeConfig(t)))
	assert.Error(t, run(t, "check", "-c", filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestSnapshotCommand(t *testing.T) {
	path := writeConfig(t)
	out := filepath.Join(t.TempDir(), "people.rdf")

	require.NoError(t, run(t, "snapshot", "people", "-c", path, "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc, err := rdftest.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.org/person/1", "http://example.org/person/2"}, doc.Subjects)

	assert.Error(t, run(t, "snapshot", "nobody", "-c", path, "-o", out))
}

func TestFragmentsCommand(t *testing.T) {
	path := writeConfig(t)
	assert.NoError(t, run(t, "fragments", "people", "-c", path, "--all", "--page-size", "1"))
	assert.Error(t, run(t, "fragments", "people", "-c", path, "--since", "soon"))
}

func TestCSVTargets(t *testing.T) {
	reg, err := loadRegistry(config.Settings{Config: writeConfig(t), PageSize: 10, BatchSize: 10})
	require.NoError(t, err)
	defer reg.Close()

	targets := csvTargets(reg)
	require.Len(t, targets, 1)
	assert.Equal(t, "people.csv", filepath.Base(targets[0].Source()))
}

func TestLoadtestCommand(t *testing.T) {
	assert.NoError(t, run(t, "loadtest", "people", "-c", writeConfig(t), "--clients", "3"))
}
