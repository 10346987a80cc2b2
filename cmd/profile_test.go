package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/persist"
)

func legacyProfile(t *testing.T) *persist.TableProfile {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	_, err = conn.Exec(ctx, `CREATE TABLE legacy_prices (
		card_id TEXT NOT NULL, game TEXT, low INTEGER, median INTEGER, high INTEGER, notes TEXT, last_run DATETIME)`)
	require.NoError(t, err)

	prof, err := persist.Introspect(ctx, conn, "legacy_prices", persist.Options{})
	require.NoError(t, err)
	return prof
}

func TestWriteProfile_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeProfile(&buf, legacyProfile(t), "table"))

	out := buf.String()
	assert.Contains(t, out, "Table:  legacy_prices")
	assert.Contains(t, out, "Keys:   card_id, game")
	assert.Contains(t, out, "Mode:   update-then-insert")
	assert.Contains(t, out, "id, key")
	assert.Contains(t, out, "category, key")
	assert.Contains(t, out, "touch")
}

func TestWriteProfile_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeProfile(&buf, legacyProfile(t), "yaml"))

	var got persist.TableProfile
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "legacy_prices", got.Table)
	assert.Equal(t, "card_id", got.IDColumn)
	assert.False(t, got.HasUnique)
	assert.Equal(t, []string{"low", "median", "high"}, got.ValueColumns)
	assert.Equal(t, []string{"last_run"}, got.TouchColumns)
}

func TestWriteProfile_UnknownOutput(t *testing.T) {
	err := writeProfile(&bytes.Buffer{}, &persist.TableProfile{}, "xml")
	assert.Error(t, err)
}

func TestColumnRole(t *testing.T) {
	prof := &persist.TableProfile{
		IDColumn: "id", SegmentColumn: "segment",
		KeyColumns: []string{"id"}, ValueColumns: []string{"median"}, TouchColumns: []string{"updated_at"},
	}
	assert.Equal(t, "id, key", columnRole(prof, "id"))
	assert.Equal(t, "segment", columnRole(prof, "segment"))
	assert.Equal(t, "value", columnRole(prof, "median"))
	assert.Equal(t, "touch", columnRole(prof, "updated_at"))
	assert.Equal(t, "-", columnRole(prof, "notes"))
}
