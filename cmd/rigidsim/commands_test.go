package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rigidsim/internal/storage"
)

const pendulumScene = `
name: swing
models:
  - name: pendulum
    links:
      - name: bob
        pose: [0.5, 0, -1]
        mass: 1
    joints:
      - name: pivot
        type: revolute
        child: bob
        pose: [-0.5, 0, 1]
        axes:
          - xyz: [0, 1, 0]
`

func TestParseValue(t *testing.T) {
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "rk4", parseValue("rk4"))
}

func newCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	engineFlags(cmd)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		preset, configFile, integrator, rtf = "", "", "", 1
	})
	return cmd
}

func TestEngineConfigFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pendulumScene), 0o644))

	cmd := newCommand(t)
	require.NoError(t, cmd.Flags().Set("rtf", "0"))
	integrator = "rk4"
	eng, sc, err := loadEngine(cmd, path)
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, "swing", sc.Name)
	assert.Equal(t, 0.0, eng.Info().RealTimeFactor)
	assert.Equal(t, "rk4", eng.Info().IntegratorType)

	preset = "bouncy"
	_, _, err = loadEngine(cmd, path)
	assert.ErrorContains(t, err, "unknown preset")
}

func TestRunSceneStoresRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pendulumScene), 0o644))

	dataDir = filepath.Join(dir, "data")
	duration, dt, noSave = 0.05, 0.01, false
	cmd := newCommand(t)
	require.NoError(t, cmd.Flags().Set("rtf", "0"))
	require.NoError(t, runScene(cmd, []string{path}))

	runs, err := storage.New(dataDir).List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "swing", run.Name)
	assert.Equal(t, 5, run.Steps)
	assert.Equal(t, []string{"pendulum"}, run.Models)
	assert.Contains(t, run.Metrics, "energy_drift")

	samples, err := storage.New(dataDir).LoadTrajectory(run.ID)
	require.NoError(t, err)
	assert.Len(t, storage.Series(samples, "pendulum", "bob"), 6)

	plotFields = []string{"x"}
	assert.NoError(t, plotRun(cmd, []string{run.ID}))
	plotFields = []string{"q"}
	assert.Error(t, plotRun(cmd, []string{run.ID}))

	outFile, svgPlane = filepath.Join(dir, "swing.svg"), "xz"
	t.Cleanup(func() { outFile, svgPlane = "", "" })
	require.NoError(t, svgRun(cmd, []string{run.ID}))
	body, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pendulum/bob")

	svgPlane = "xq"
	assert.Error(t, svgRun(cmd, []string{run.ID}))
	_, err = os.Stat(outFile)
	assert.True(t, os.IsNotExist(err), "a failed export leaves no file")
}
