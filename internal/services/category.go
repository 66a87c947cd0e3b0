package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedCategory is one entry of the category seed file.
type SeedCategory struct {
	Name   string `yaml:"name"`
	Slug   string `yaml:"slug"`
	Active *bool  `yaml:"active"`
}

type seedFile struct {
	Categories []SeedCategory `yaml:"categories"`
}

// CategoryService handles category listing and seeding
type CategoryService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewCategoryService creates a new category service
func NewCategoryService(db *db.DB, metrics *metrics.AppMetrics, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{db: db, metrics: metrics, logger: logger}
}

// ListActive returns active categories ordered by name.
func (s *CategoryService) ListActive(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := "SELECT id, name, slug, is_active FROM categories WHERE is_active = TRUE ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// LoadSeedFile reads categories from a YAML file.
func LoadSeedFile(path string) ([]SeedCategory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category seed file: %w", err)
	}
	return f.Categories, nil
}

// Seed upserts categories by slug and returns how many were written.
func (s *CategoryService) Seed(ctx context.Context, seeds []SeedCategory) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO categories (name, slug, is_active) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name), is_active = VALUES(is_active)"
	written := 0
	for _, seed := range seeds {
		name := strings.TrimSpace(seed.Name)
		if name == "" {
			continue
		}
		slug := seed.Slug
		if slug == "" {
			slug = Slugify(name)
		}
		active := seed.Active == nil || *seed.Active

		start := time.Now()
		_, err := tx.ExecContext(ctx, query, name, slug, active)
		s.metrics.RecordDBQuery(ctx, "INSERT", "categories", query, start, err == nil)
		if err != nil {
			return 0, fmt.Errorf("failed to seed category %q: %w", name, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Info("categories seeded", zap.Int("count", written))
	return written, nil
}

// Slugify lowercases name and joins its words with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
