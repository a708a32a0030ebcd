package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `date,entity,value
2021-01-31,"Kings, NY",700
2021-02-28,"Kings, NY",712
2021-03-31,"Kings, NY",705
2021-04-30,"Kings, NY",721
2021-05-31,"Kings, NY",730
2021-01-31,"Cook, IL",250
2021-02-28,"Cook, IL",252
2021-03-31,"Cook, IL",249
2021-04-30,"Cook, IL",258
2021-05-31,"Cook, IL",262
2021-01-31,"Wayne, MI",90
2021-02-28,"Wayne, MI",91
2021-03-31,"Wayne, MI",93
2021-04-30,"Wayne, MI",92
2021-05-31,"Wayne, MI",95
`

// testEnv writes a price CSV into a temp dir and returns it with a database path there.
func testEnv(t *testing.T) (csvPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))
	t.Chdir(dir)
	return csvPath, filepath.Join(dir, "prices.db")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mcforecast version "+version)
}

func TestImportAndEntities(t *testing.T) {
	csvPath, dbPath := testEnv(t)

	out, err := execute(t, "import", "--db", dbPath, "--file", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 15 observations")

	out, err = execute(t, "entities", "--db", dbPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Wayne, MI")
	assert.Contains(t, lines[3], "Kings, NY")
}

func TestImportMissingFile(t *testing.T) {
	_, dbPath := testEnv(t)
	_, err := execute(t, "import", "--db", dbPath, "--file", "nope.csv")
	assert.Error(t, err)
}

func TestForecastJSON(t *testing.T) {
	csvPath, dbPath := testEnv(t)
	_, err := execute(t, "import", "--db", dbPath, "--file", csvPath)
	require.NoError(t, err)

	args := []string{"forecast", "--db", dbPath,
		"--select", "most", "--count", "2",
		"--trials", "50", "--horizon", "6", "--seed", "9",
		"--invest", "10000", "--format", "json"}

	out, err := execute(t, args...)
	require.NoError(t, err)

	var decoded struct {
		Trials   int `json:"trials"`
		Horizon  int `json:"horizon"`
		Seed     uint64
		Entities []struct {
			Name string `json:"name"`
		} `json:"entities"`
		Summary struct {
			Count int     `json:"count"`
			Lower float64 `json:"ci_lower"`
			Upper float64 `json:"ci_upper"`
		} `json:"summary"`
		Investment *struct {
			Lower string `json:"lower"`
		} `json:"investment"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded), out)
	assert.Equal(t, 50, decoded.Trials)
	assert.Equal(t, 6, decoded.Horizon)
	assert.Equal(t, uint64(9), decoded.Seed)
	require.Len(t, decoded.Entities, 2)
	assert.Equal(t, "Kings, NY", decoded.Entities[0].Name)
	assert.Equal(t, "Cook, IL", decoded.Entities[1].Name)
	assert.Equal(t, 50, decoded.Summary.Count)
	assert.LessOrEqual(t, decoded.Summary.Lower, decoded.Summary.Upper)
	require.NotNil(t, decoded.Investment)

	// same seed, same distribution
	again, err := execute(t, args...)
	require.NoError(t, err)
	var second struct {
		Summary struct {
			Lower float64 `json:"ci_lower"`
			Upper float64 `json:"ci_upper"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(again), &second))
	assert.Equal(t, decoded.Summary.Lower, second.Summary.Lower)
	assert.Equal(t, decoded.Summary.Upper, second.Summary.Upper)
}

func TestForecastWeightsAndText(t *testing.T) {
	csvPath, dbPath := testEnv(t)
	_, err := execute(t, "import", "--db", dbPath, "--file", csvPath)
	require.NoError(t, err)

	out, err := execute(t, "forecast", "--db", dbPath,
		"--entity", "Kings, NY", "--entity", "Wayne, MI",
		"--weight", "Kings, NY=0.25", "--weight", "Wayne, MI=0.75",
		"--trials", "20", "--horizon", "3", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "95% confidence interval")
	assert.Contains(t, out, "0.7500")
}

func TestForecastErrors(t *testing.T) {
	csvPath, dbPath := testEnv(t)
	_, err := execute(t, "import", "--db", dbPath, "--file", csvPath)
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"no entities", []string{"forecast"}},
		{"unknown entity", []string{"forecast", "--entity", "Nowhere, XX"}},
		{"weights not normalized", []string{"forecast", "--entity", "Cook, IL", "--weight", "Cook, IL=0.5"}},
		{"weight missing entity", []string{"forecast", "--entity", "Cook, IL", "--entity", "Wayne, MI", "--weight", "Cook, IL=1"}},
		{"malformed weight", []string{"forecast", "--entity", "Cook, IL", "--weight", "Cook, IL"}},
		{"zero trials", []string{"forecast", "--entity", "Cook, IL", "--trials", "0"}},
		{"notify without token", []string{"forecast", "--entity", "Cook, IL", "--notify"}},
		{"explicit config missing", []string{"forecast", "--config", "missing.yaml", "--entity", "Cook, IL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(tt.args, "--db", dbPath)...)
			assert.Error(t, err)
		})
	}
}

func TestParseWeightFlags(t *testing.T) {
	got, err := parseWeightFlags([]string{"a=b=0.4", " Kings, NY = 0.6 "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a=b", got[0].Entity)
	assert.Equal(t, 0.4, got[0].Weight)
	assert.Equal(t, "Kings, NY", got[1].Entity)
	assert.Equal(t, 0.6, got[1].Weight)

	for _, bad := range []string{"noequals", "=0.5", "x=abc"} {
		_, err := parseWeightFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}
