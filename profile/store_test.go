package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/receipt"
)

func ts(min int) time.Time {
	return time.Date(2026, 10, 15, 9, min, 0, 0, time.UTC)
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	kitchen := New("Kitchen", adapter.KindSocket, "10.0.0.20:9100", receipt.Paper80mm)
	kitchen.CreatedAt = ts(1)
	bar := New("Bar", adapter.KindWireless, "/dev/rfcomm0", receipt.Paper58mm)
	bar.CreatedAt = ts(2)

	require.NoError(t, s.Save(ctx, kitchen))
	require.NoError(t, s.Save(ctx, bar))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Kitchen", all[0].Name)
	assert.Equal(t, "Bar", all[1].Name)

	got, err := s.Get(ctx, bar.ID)
	require.NoError(t, err)
	assert.Equal(t, adapter.KindWireless, got.Kind)
	assert.Equal(t, receipt.Paper58mm, got.PaperWidth)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Default(ctx)
	assert.ErrorIs(t, err, ErrNoDefault)

	// single default
	require.NoError(t, s.SetDefault(ctx, kitchen.ID))
	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitchen.ID, def.ID)

	bar.IsDefault = true
	require.NoError(t, s.Save(ctx, bar))
	assertOneDefault(t, s, bar.ID)

	require.NoError(t, s.SetDefault(ctx, kitchen.ID))
	assertOneDefault(t, s, kitchen.ID)

	assert.ErrorIs(t, s.SetDefault(ctx, "missing"), ErrNotFound)
	assertOneDefault(t, s, kitchen.ID)

	// reconnect timestamp
	when := ts(30)
	got.LastConnectedAt = &when
	require.NoError(t, s.Save(ctx, got))
	got, err = s.Get(ctx, bar.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastConnectedAt)
	assert.True(t, when.Equal(*got.LastConnectedAt))

	// invalid profiles are rejected
	bad := New("Bad", adapter.Kind("infrared"), "x", receipt.Paper58mm)
	assert.ErrorIs(t, s.Save(ctx, bad), ErrInvalid)

	require.NoError(t, s.Delete(ctx, kitchen.ID))
	assert.ErrorIs(t, s.Delete(ctx, kitchen.ID), ErrNotFound)
	_, err = s.Default(ctx)
	assert.ErrorIs(t, err, ErrNoDefault)

	p, err := Preferred(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, bar.ID, p.ID)
}

func assertOneDefault(t *testing.T, s Store, id string) {
	t.Helper()
	all, err := s.List(context.Background())
	require.NoError(t, err)
	defaults := 0
	for _, p := range all {
		if p.IsDefault {
			defaults++
			assert.Equal(t, id, p.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "printers.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	runStoreContract(t, s)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	// reload from disk
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	all, err := reloaded.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Bar", all[0].Name)
	require.NotNil(t, all[0].LastConnectedAt)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSPRINT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POSPRINT_TEST_DATABASE_URL not set, skipping test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `DELETE FROM printer_profiles`)
	require.NoError(t, err)

	runStoreContract(t, NewPostgresStore(pool))
}

func TestLastUsed(t *testing.T) {
	_, ok := LastUsed(nil)
	assert.False(t, ok)

	early, late := ts(1), ts(2)
	ps := []Profile{
		{ID: "a", LastConnectedAt: &early},
		{ID: "b"},
		{ID: "c", LastConnectedAt: &late},
	}
	p, ok := LastUsed(ps)
	require.True(t, ok)
	assert.Equal(t, "c", p.ID)
}

func TestMatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := Match(ctx, s, adapter.KindSocket, "10.0.0.20")
	require.NoError(t, err)
	assert.False(t, ok)

	kitchen := New("Kitchen", adapter.KindSocket, "10.0.0.20", receipt.Paper80mm)
	require.NoError(t, s.Save(ctx, kitchen))
	require.NoError(t, s.Save(ctx, New("Bar", adapter.KindWireless, "10.0.0.20", receipt.Paper58mm)))

	p, ok, err := Match(ctx, s, adapter.KindSocket, "10.0.0.20")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kitchen.ID, p.ID)

	_, ok, err = Match(ctx, s, adapter.KindSocket, "10.0.0.21")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferredWithoutProfiles(t *testing.T) {
	_, err := Preferred(context.Background(), NewMemoryStore())
	assert.ErrorIs(t, err, ErrNoDefault)
}

func TestValidate(t *testing.T) {
	p := New("Front", adapter.KindCable, "04b8:0202", receipt.Paper80mm)
	assert.NoError(t, p.Validate())
	assert.NotEmpty(t, p.ID)

	p.PaperWidth = 110
	assert.ErrorIs(t, p.Validate(), ErrInvalid)

	p = New("Front", adapter.KindCable, "", receipt.Paper80mm)
	p.ID = ""
	assert.ErrorIs(t, p.Validate(), ErrInvalid)
}
