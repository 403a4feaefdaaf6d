package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mdmesh/internal/metrics"
)

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	samples := []metrics.Sample{{Time: 0, Total: 1}, {Time: 0.5, Total: 1.001}}
	id, err := st.Save(RunMetadata{ID: "exp", System: "lj", Ranks: 2}, samples)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.Export(&buf, id))

	var got ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "exp", got.ID)
	assert.Equal(t, 2, got.Ranks)
	assert.Equal(t, samples, got.Samples)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, st.ExportFile(path, id))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, buf.String(), string(data))
}

func TestExportMissingRun(t *testing.T) {
	st := New(t.TempDir())
	err := st.Export(&bytes.Buffer{}, "nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
