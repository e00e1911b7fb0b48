package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
	"github.com/zjrosen/nametags/internal/testutil"
)

// newDriver connects to TEST_POSTGRES_DSN and returns a driver on a table
// unique to the test. Skips when the variable is unset.
func newDriver(t *testing.T) *Driver[domain.Properties] {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	table := fmt.Sprintf("tags_test_%d", time.Now().UnixNano())
	d, err := New[domain.Properties](db, table)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
	})
	return d
}

func TestNew_RejectsBadTableName(t *testing.T) {
	_, err := New[domain.Properties](&DB{}, "Tags-1")
	require.Error(t, err)
}

func TestConnect_BadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz")
	require.ErrorContains(t, err, "parse dsn")
}

func TestDriver_CRUD(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()
	testutil.NewBuilder(t).WithStandardTags().BuildTags(d)

	admin, err := d.Find(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, domain.ColorRed, admin.Payload().Color)

	ok, err := d.Exists(ctx, "vip")
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := d.Delete(ctx, "vip")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = d.Find(ctx, "vip")
	require.ErrorIs(t, err, store.ErrNotFound)
}
