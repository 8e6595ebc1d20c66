package product

import (
	"context"
	_ "embed"
	"fmt"

	"pizzeria-be/internal/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Products []*Product `yaml:"products"`
}

// ParseSeed decodes a menu file. Every entry needs a name and a
// non-negative price.
func ParseSeed(data []byte) ([]*Product, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, p := range f.Products {
		if err := validateProduct(p); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return f.Products, nil
}

// DefaultMenu returns the embedded default menu.
func DefaultMenu() []*Product {
	products, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(err)
	}
	return products
}

// Seed inserts products when the catalog is empty and reports how many
// were inserted.
func Seed(ctx context.Context, repo Repository, products []*Product) (int, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "seed"))

	n, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if n > 0 {
		log.Info("catalog already populated, skipping seed", zap.Int("products", n))
		return 0, nil
	}

	if err := repo.InsertMany(ctx, products); err != nil {
		return 0, fmt.Errorf("insert seed: %w", err)
	}
	log.Info("catalog seeded", zap.Int("products", len(products)))
	return len(products), nil
}
