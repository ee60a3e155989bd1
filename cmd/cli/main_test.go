package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"labstats/internal/errors"
)

// run executes the CLI with the given arguments and standard input
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("CORRECTION_METHOD", "holm")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EXCEL_FILE", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &m))
	return m
}

func TestFisherCommand(t *testing.T) {
	out, err := run(t, "", "fisher", "8", "2", "3", "7")
	require.NoError(t, err)

	m := decode(t, out)
	assert.Equal(t, "fisher_exact", m["test"])
	assert.InDelta(t, 0.0697785, m["p_value"], 1e-6)
	assert.InDelta(t, 9.3333333, m["odds_ratio"], 1e-6)
}

func TestFisherCommand_InfiniteOddsRatio(t *testing.T) {
	out, err := run(t, "", "fisher", "5", "0", "3", "4")
	require.NoError(t, err)
	m := decode(t, out)
	assert.True(t, math.IsInf(m["odds_ratio"].(float64), 1))
}

func TestFisherCommand_BadArguments(t *testing.T) {
	_, err := run(t, "", "fisher", "8", "two", "3", "7")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = run(t, "", "fisher", "8", "2", "3")
	assert.Error(t, err)
}

func TestChiSquareCommand_Stdin(t *testing.T) {
	request := `
row_labels: [control, treated]
counts:
  - [10, 0]
  - [0, 10]
`
	out, err := run(t, request, "chisq", "-")
	require.NoError(t, err)

	m := decode(t, out)
	chi := m["chi_square"].(map[string]interface{})
	assert.InDelta(t, 20.0, chi["statistic"], 1e-9)
	assert.Equal(t, 1, chi["df"])
	assert.NotNil(t, m["fisher"])
	assert.NotEmpty(t, m["run_id"])
}

func TestChiSquareCommand_UnknownField(t *testing.T) {
	_, err := run(t, "cells: [[1, 2], [3, 4]]\n", "chisq", "-")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestTukeyCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- {name: a, values: [1, 2, 3, 4]}
- {name: b, values: [2, 3, 4, 5]}
- {name: c, values: [6, 7, 8, 9]}
`), 0o644))

	out, err := run(t, "", "tukey", path)
	require.NoError(t, err)

	m := decode(t, out)
	anova := m["anova"].(map[string]interface{})
	assert.InDelta(t, 16.8, anova["statistic"], 1e-9)
	tukey := m["tukey"].(map[string]interface{})
	assert.Len(t, tukey["comparisons"], 3)
}

func TestCorrectCommand(t *testing.T) {
	out, err := run(t, "", "correct", "--method", "bonferroni", "0.01", "0.04", "0.5")
	require.NoError(t, err)

	var values []correctedValue
	require.NoError(t, yaml.Unmarshal([]byte(out), &values))
	require.Len(t, values, 3)
	assert.InDelta(t, 0.03, values[0].Adjusted, 1e-12)
	assert.InDelta(t, 0.12, values[1].Adjusted, 1e-12)
	assert.Equal(t, 1.0, values[2].Adjusted)

	_, err = run(t, "", "correct", "--method", "sidak", "0.01")
	assert.Equal(t, errors.CodeUnsupportedMethod, errors.GetCode(err))
}

func TestExperimentCommand_Workbook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "infection.csv"),
		[]byte("group,infected,uninfected\ncontrol,11,9\ntreated,2,18\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "survival.csv"),
		[]byte("group,time,status\ncontrol,30,0\ncontrol,21,1\ntreated,4,1\ntreated,6,1\n"), 0o644))

	out, err := run(t, "", "experiment", "exp-1", "--workbook", dir)
	require.NoError(t, err)

	m := decode(t, out)
	assert.Equal(t, "exp-1", m["experiment_id"])
	assert.NotNil(t, m["independence"])
	assert.NotNil(t, m["survival"])
	assert.Equal(t, []interface{}{"measurements"}, m["skipped"])
}

func TestExperimentCommand_MissingSheetIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "infection.csv"),
		[]byte("group,infected,uninfected\ncontrol,11,9\ntreated,2,18\n"), 0o644))

	out, err := run(t, "", "experiment", "exp-1", "--workbook", dir)
	require.NoError(t, err)

	m := decode(t, out)
	assert.NotNil(t, m["independence"])
	assert.Nil(t, m["survival"])
	assert.Equal(t, []interface{}{"measurements", "survival"}, m["skipped"])
}

func TestMultiWayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "design.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
factors: [dose]
observations:
  - {levels: [a], value: 1}
  - {levels: [a], value: 2}
  - {levels: [b], value: 6}
  - {levels: [b], value: 7}
`), 0o644))

	out, err := run(t, "", "multiway", path)
	require.NoError(t, err)

	m := decode(t, out)
	assert.NotEmpty(t, m["run_id"])
	multi := m["multiway"].(map[string]interface{})
	assert.Len(t, multi["effects"], 1)
}

func TestExperimentCommand_NoSource(t *testing.T) {
	_, err := run(t, "", "experiment", "exp-1")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
