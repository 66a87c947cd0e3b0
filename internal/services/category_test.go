package services

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ethnic-wear", Slugify("Ethnic Wear"))
	assert.Equal(t, "party-wear", Slugify("  Party   Wear! "))
	assert.Equal(t, "kids", Slugify("Kids"))
	assert.Equal(t, "men-s-kurta-2", Slugify("Men's Kurta 2"))
}

func TestLoadSeedFileAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`categories:
  - name: Ethnic Wear
  - name: Wedding
    slug: wedding-wear
  - name: Costumes
    active: false
  - name: "  "
`), 0o644))

	seeds, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seeds, 4)

	database, mock := newMockDB(t)
	svc := NewCategoryService(database, metrics.NewNoopMetrics(), nil)

	upsert := regexp.QuoteMeta("INSERT INTO categories (name, slug, is_active) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE")
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("Ethnic Wear", "ethnic-wear", true).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsert).WithArgs("Wedding", "wedding-wear", true).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(upsert).WithArgs("Costumes", "costumes", false).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	n, err := svc.Seed(context.Background(), seeds)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActive(t *testing.T) {
	database, mock := newMockDB(t)
	svc := NewCategoryService(database, metrics.NewNoopMetrics(), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE is_active = TRUE ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "is_active"}).
			AddRow(2, "Ethnic Wear", "ethnic-wear", true).
			AddRow(1, "Kids", "kids", true))

	cats, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Ethnic Wear", cats[0].Name)
}
