package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
)

var winter = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

func sampleState(t *testing.T) State {
	t.Helper()
	nyKey, err := clock.KeyOf("America/New_York", winter)
	require.NoError(t, err)
	tokyoKey, err := clock.KeyOf("Asia/Tokyo", winter)
	require.NoError(t, err)

	return State{
		HomeSet: true,
		Cards: []cards.Card{
			{
				Key:                nyKey,
				RepresentativeIANA: "America/New_York",
				Locations: []cards.Member{
					{City: "New York", CountryName: "United States", CountryCode: "US", OriginalIANA: "America/New_York"},
					{City: "Toronto", CountryName: "Canada", CountryCode: "CA", OriginalIANA: "America/Toronto", Shared: true},
				},
				IsHome:    true,
				UserAdded: true,
			},
			{
				Key:                tokyoKey,
				RepresentativeIANA: "Asia/Tokyo",
				Locations: []cards.Member{
					{City: "Tokyo", CountryName: "Japan", CountryCode: "JP", OriginalIANA: "Asia/Tokyo"},
				},
				IsSystemMarker: true,
				UserAdded:      true,
			},
		},
	}
}

// backends runs fn against a fresh instance of every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("yaml", func(t *testing.T) {
		fn(t, NewFileStore(filepath.Join(t.TempDir(), "figured", "state.yaml")))
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestStore_roundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		want := sampleState(t)

		require.NoError(t, s.Save(ctx, want))
		got, err := s.Load(ctx)

		require.NoError(t, err)
		assert.True(t, got.HomeSet)
		assert.Equal(t, want.Cards, got.Cards)
		assert.Empty(t, got.Discarded)
	})
}

func TestStore_emptyWhenNothingSaved(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		got, err := s.Load(context.Background())

		require.NoError(t, err)
		assert.False(t, got.HomeSet)
		assert.Empty(t, got.Cards)
	})
}

func TestStore_saveReplaces(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleState(t)))

		require.NoError(t, s.Save(ctx, State{HomeSet: false}))
		got, err := s.Load(ctx)

		require.NoError(t, err)
		assert.False(t, got.HomeSet)
		assert.Empty(t, got.Cards)
	})
}

func TestStore_cancelledContext(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Save(ctx, sampleState(t))

		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "save", perr.Op)
	})
}

func TestFileStore_malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("homeTimezoneSet: [unterminated\n"), 0644))

	got, err := NewFileStore(path).Load(context.Background())

	require.NoError(t, err)
	assert.False(t, got.HomeSet)
	assert.Empty(t, got.Cards)
	assert.Len(t, got.Discarded, 1)
}

func TestFileStore_wrongShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("homeTimezoneSet: true\nuserTimezonesConfig: nope\n"), 0644))

	got, err := NewFileStore(path).Load(context.Background())

	require.NoError(t, err)
	assert.True(t, got.HomeSet)
	assert.Empty(t, got.Cards)
	require.Len(t, got.Discarded, 1)
	assert.ErrorIs(t, got.Discarded[0], ErrUnrecognizedRecord)
}

func TestFileStore_legacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	legacy := `homeTimezoneSet: "true"
userTimezonesConfig:
  - iana: America/New_York
    city: New York
    countryName: United States
    countryCode: US
    isHome: true
    userAdded: true
  - iana: Europe/Berlin
    city: Berlin
    countryCode: DE
    isSystem: true
    isSystemMarker: true
    userAdded: false
`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	got, err := NewFileStore(path).Load(context.Background())

	require.NoError(t, err)
	assert.True(t, got.HomeSet)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "America/New_York", got.Cards[0].RepresentativeIANA)
	assert.True(t, got.Cards[0].IsHome)
}

func TestFileStore_loadError(t *testing.T) {
	// A directory where the file should be cannot be read.
	dir := t.TempDir()

	_, err := NewFileStore(dir).Load(context.Background())

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Op)
}

func TestFileStore_saveError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := NewFileStore(filepath.Join(blocker, "state.yaml")).Save(context.Background(), sampleState(t))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save", perr.Op)
}

func TestFileStore_noTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "state.yaml"))

	require.NoError(t, s.Save(context.Background(), sampleState(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.yaml", entries[0].Name())
}

func TestSQLiteStore_persistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleState(t)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.HomeSet)
	assert.Len(t, got.Cards, 2)
}

func TestSQLiteStore_malformedValue(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?), (?, ?)`,
		KeyHomeSet, "true",
		KeyCards, "{not json")
	require.NoError(t, err)

	got, err := s.Load(ctx)

	require.NoError(t, err)
	assert.True(t, got.HomeSet)
	assert.Empty(t, got.Cards)
	assert.Len(t, got.Discarded, 1)
}

func TestSQLiteStore_legacyValue(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`, KeyCards,
		`[{"iana":"Asia/Tokyo","isHome":true,"cities":[{"city":"Tokyo","countryCode":"JP"}]}]`)
	require.NoError(t, err)

	got, err := s.Load(ctx)

	require.NoError(t, err)
	assert.False(t, got.HomeSet)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "Asia/Tokyo", got.Cards[0].Locations[0].OriginalIANA)
}

func TestPersistenceError(t *testing.T) {
	err := &PersistenceError{Op: "save", Err: os.ErrPermission}

	assert.Equal(t, "store save: permission denied", err.Error())
	assert.True(t, errors.Is(err, os.ErrPermission))
}
