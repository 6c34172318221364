package drink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AmeenMohammed/coffee-shop/internal/config"
	"github.com/AmeenMohammed/coffee-shop/internal/domain"
)

// Repository defines the interface for drink persistence.
type Repository interface {
	// List returns every drink ordered by id.
	List(ctx context.Context) ([]domain.Drink, error)

	// Get returns the drink with id, or ErrDrinkNotFound.
	Get(ctx context.Context, id int64) (*domain.Drink, error)

	// Create stores a new drink and returns it with its assigned id.
	// Returns ErrDrinkConflict if the title is already taken.
	Create(ctx context.Context, d domain.Drink) (*domain.Drink, error)

	// Update applies u to the drink with id and returns the stored result.
	Update(ctx context.Context, id int64, u domain.DrinkUpdate) (*domain.Drink, error)

	// Delete removes the drink with id, or returns ErrDrinkNotFound.
	Delete(ctx context.Context, id int64) error

	// Reset drops all drinks and recreates the schema.
	Reset(ctx context.Context) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func() (Repository, error)

// FactoryFor picks the repository implementation configured in cfg.
func FactoryFor(cfg config.DatabaseConfig) (RepositoryFactory, error) {
	switch cfg.Driver {
	case config.SQLiteDriver:
		return SQLiteDrinkRepositoryFactory(SQLiteDrinkRepositoryConfig{DatabasePath: cfg.Path}), nil
	case config.PostgresDriver:
		return PostgresDrinkRepositoryFactory(PostgresDrinkRepositoryConfig{DSN: cfg.DSN}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func encodeRecipe(r domain.Recipe) (string, error) {
	if r == nil {
		r = domain.Recipe{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	return string(data), nil
}

func decodeRecipe(s string) (domain.Recipe, error) {
	var r domain.Recipe
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return r, nil
}
