package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/storage/storagetest"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(sqlMigrations, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestUpDownVersion_Integration(t *testing.T) {
	dsn := storagetest.Postgres(t)
	ctx := context.Background()

	v, dirty, err := Version(ctx, dsn)
	require.NoError(t, err)
	require.Zero(t, v)
	require.False(t, dirty)

	require.NoError(t, Up(ctx, dsn))
	require.NoError(t, Up(ctx, dsn))
	v, _, err = Version(ctx, dsn)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	require.NoError(t, Down(ctx, dsn, 1))
	v, _, err = Version(ctx, dsn)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	require.NoError(t, Down(ctx, dsn, 0))
	v, _, err = Version(ctx, dsn)
	require.NoError(t, err)
	require.Zero(t, v)
}
