package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mdmesh/internal/config"
)

func newRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	configFile, system, preset, rank, peers = "", "lj", "", -1, nil
	cmd := &cobra.Command{Use: "run"}
	addSystemFlags(cmd)
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "")
	cmd.Flags().IntVar(&samples, "samples", config.DefaultSamples, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newRunCmd(t))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadConfigPresetWithOverrides(t *testing.T) {
	cfg, err := loadConfig(newRunCmd(t, "--preset", "liquid", "--ranks", "2", "--samples", "5"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Ranks)
	assert.Equal(t, 5, cfg.Schedule.Samples)
	assert.Equal(t, 343, cfg.Particles.Count)
	assert.Equal(t, 10, cfg.Schedule.StepsPerSample)
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	base := config.DefaultConfig()
	base.Dt = 0.001
	base.Particles.Count = 8
	require.NoError(t, config.Save(path, base))

	cfg, err := loadConfig(newRunCmd(t, "--config", path, "--count", "27"))
	require.NoError(t, err)
	assert.Equal(t, 0.001, cfg.Dt)
	assert.Equal(t, 27, cfg.Particles.Count)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(newRunCmd(t, "--preset", "nope"))
	assert.ErrorContains(t, err, "unknown preset")

	_, err = loadConfig(newRunCmd(t, "--rank", "1"))
	assert.ErrorContains(t, err, "tcp transport")

	_, err = loadConfig(newRunCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = loadConfig(newRunCmd(t, "--dt=-1"))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadConfigPeers(t *testing.T) {
	cfg, err := loadConfig(newRunCmd(t, "--peers", "127.0.0.1:7001,127.0.0.1:7002", "--rank", "1"))
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport.Kind)
	assert.Equal(t, 2, cfg.Ranks)
}

func TestSummaryListsMetricsSorted(t *testing.T) {
	out := summary("run", []row{{"ranks", "2"}}, map[string]float64{"zeta_metric": 2, "alpha_metric": 1}, []string{"rank 1 step 3: oops"})
	assert.Contains(t, out, "ranks")
	assert.Contains(t, out, "oops")
	assert.Less(t, strings.Index(out, "alpha_metric"), strings.Index(out, "zeta_metric"))
}
