// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package store

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesnip/codesnip/pkg/errutil"
)

// fakeRunner implements schemaRunner with canned results.
type fakeRunner struct {
	err        error
	version    uint
	dirty      bool
	versionErr error
	srcErr     error
	dbErr      error
	steps      int
	forced     int
}

func (f *fakeRunner) Up() error   { return f.err }
func (f *fakeRunner) Down() error { return f.err }
func (f *fakeRunner) Steps(n int) error {
	f.steps = n
	return f.err
}
func (f *fakeRunner) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeRunner) Force(v int) error {
	f.forced = v
	return f.err
}
func (f *fakeRunner) Close() (error, error) { return f.srcErr, f.dbErr }

func TestNewMigrator_RejectsUnknownScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/codesnip")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestNewMigrator_PostgresqlSchemeIsRecognized(t *testing.T) {
	// Connection fails, but the scheme itself must be understood.
	_, err := NewMigrator("postgresql://127.0.0.1:1/codesnip?connect_timeout=1")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "unknown driver")
}

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", driverURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://u:p@h/db", driverURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://u:p@h/db", driverURL("pgx5://u:p@h/db"))
}

func TestMigrator_RunErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Migrator) error
		code string
	}{
		{"up", (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", func(m *Migrator) error { return m.Steps(-1) }, "MIGRATION_STEPS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" no change is success", func(t *testing.T) {
			m := &Migrator{runner: &fakeRunner{err: migrate.ErrNoChange}}
			assert.NoError(t, tt.run(m))
		})
		t.Run(tt.name+" failure", func(t *testing.T) {
			m := &Migrator{runner: &fakeRunner{err: errors.New("database locked")}}
			err := tt.run(m)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Steps(t *testing.T) {
	runner := &fakeRunner{}
	m := &Migrator{runner: runner}

	require.NoError(t, m.Steps(0))
	assert.Zero(t, runner.steps, "zero steps must not reach the runner")

	require.NoError(t, m.Steps(2))
	assert.Equal(t, 2, runner.steps)
}

func TestMigrator_Force(t *testing.T) {
	runner := &fakeRunner{}
	m := &Migrator{runner: runner}

	err := m.Force(-1)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")

	require.NoError(t, m.Force(2))
	assert.Equal(t, 2, runner.forced)

	runner.err = errors.New("database locked")
	errutil.AssertErrorCode(t, m.Force(1), "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{runner: &fakeRunner{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	v, dirty, err = (&Migrator{runner: &fakeRunner{version: 2, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	_, _, err = (&Migrator{runner: &fakeRunner{versionErr: errors.New("no connection")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Status(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		applied []uint
		pending []uint
	}{
		{"empty database", 0, nil, []uint{1, 2, 3}},
		{"partially migrated", 1, []uint{1}, []uint{2, 3}},
		{"up to date", 3, []uint{1, 2, 3}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{runner: &fakeRunner{version: tt.version}}
			if tt.version == 0 {
				m = &Migrator{runner: &fakeRunner{versionErr: migrate.ErrNilVersion}}
			}
			status, err := m.Status()
			require.NoError(t, err)
			assert.Equal(t, tt.version, status.Version)
			assert.Equal(t, tt.applied, status.Applied)
			assert.Equal(t, tt.pending, status.Pending)
		})
	}

	_, err := (&Migrator{runner: &fakeRunner{versionErr: errors.New("no connection")}}).Status()
	require.Error(t, err)
}

func TestMigrator_Close(t *testing.T) {
	require.NoError(t, (&Migrator{runner: &fakeRunner{}}).Close())

	srcErr, dbErr := errors.New("source"), errors.New("database")
	err := (&Migrator{runner: &fakeRunner{srcErr: srcErr, dbErr: dbErr}}).Close()
	errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	assert.ErrorIs(t, err, srcErr)
	assert.ErrorIs(t, err, dbErr)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		require.True(t, pattern.MatchString(name), "unexpected migration file %s", name)
		if stem, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[stem] = true
		} else if stem, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[stem] = true
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")

	versions, err := embeddedVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, versions)

	versions[0] = 99
	again, err := embeddedVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), again[0], "callers must not mutate the cached versions")
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		version uint
		want    string
	}{
		{1, "000001_identities"},
		{2, "000002_session_records"},
		{3, "000003_identity_avatar"},
		{999, ""},
	}
	for _, tt := range tests {
		name, err := MigrationName(tt.version)
		require.NoError(t, err)
		assert.Equal(t, tt.want, name)
	}
}
