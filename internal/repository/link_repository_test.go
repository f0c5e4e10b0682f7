package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Siddarth2230/shortlink/internal/models"
)

// setupRepository starts a throwaway Postgres, applies migrations and
// returns a repository bound to it. Skipped with -short or without Docker.
func setupRepository(t *testing.T) *LinkRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortlink"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db))
	// applying twice is a no-op
	require.NoError(t, Migrate(ctx, db))

	return NewLinkRepository(db, nil)
}

func TestLinkRepository(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
		link := &models.ShortLink{Code: "abc123", OriginalURL: "https://example.com", ExpiresAt: &expires}
		require.NoError(t, repo.Save(ctx, link))
		assert.NotZero(t, link.ID)
		assert.False(t, link.CreatedAt.IsZero())

		found, err := repo.FindByCode(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "https://example.com", found.OriginalURL)
		require.NotNil(t, found.ExpiresAt)
		assert.True(t, expires.Equal(*found.ExpiresAt))
		assert.Zero(t, found.ClickCount)
	})

	t.Run("duplicate code", func(t *testing.T) {
		err := repo.Save(ctx, &models.ShortLink{Code: "abc123", OriginalURL: "https://other.example"})
		assert.ErrorIs(t, err, ErrDuplicateCode)
	})

	t.Run("find missing", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ExistsByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsByCode(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("record visit increments clicks", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.ShortLink{Code: "visit1", OriginalURL: "https://example.com"}))

		v := &models.Visit{ShortLinkCode: "visit1", Referrer: "Direct", Browser: "Firefox", OS: "Linux", DeviceClass: "Desktop"}
		require.NoError(t, repo.RecordVisit(ctx, v))
		require.NoError(t, repo.IncrementClicks(ctx, "visit1"))

		found, err := repo.FindByCode(ctx, "visit1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), found.ClickCount)

		visits, err := repo.ListVisits(ctx, "visit1", 10)
		require.NoError(t, err)
		require.Len(t, visits, 1)
		assert.Equal(t, "Firefox", visits[0].Browser)
		assert.Equal(t, "Desktop", visits[0].DeviceClass)
	})

	t.Run("record visit for missing link rolls back", func(t *testing.T) {
		err := repo.RecordVisit(ctx, &models.Visit{ShortLinkCode: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)

		visits, err := repo.ListVisits(ctx, "ghost", 10)
		require.NoError(t, err)
		assert.Empty(t, visits)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.ShortLink{Code: "busy", OriginalURL: "https://example.com"}))

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v := &models.Visit{ShortLinkCode: "busy", Referrer: fmt.Sprintf("https://ref%d.example", i)}
				assert.NoError(t, repo.RecordVisit(ctx, v))
			}(i)
		}
		wg.Wait()

		found, err := repo.FindByCode(ctx, "busy")
		require.NoError(t, err)
		assert.Equal(t, int64(n), found.ClickCount)
	})

	t.Run("delete expired", func(t *testing.T) {
		past := time.Now().Add(-48 * time.Hour)
		require.NoError(t, repo.Save(ctx, &models.ShortLink{Code: "old", OriginalURL: "https://example.com", ExpiresAt: &past}))

		codes, err := repo.DeleteExpired(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, codes)
	})

	t.Run("delete by code", func(t *testing.T) {
		require.NoError(t, repo.DeleteByCode(ctx, "abc123"))
		assert.ErrorIs(t, repo.DeleteByCode(ctx, "abc123"), ErrNotFound)
	})
}
