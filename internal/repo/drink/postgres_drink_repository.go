package drink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AmeenMohammed/coffee-shop/internal/domain"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
)

// PostgresDrinkRepositoryConfig holds configuration for the Postgres drink repository.
type PostgresDrinkRepositoryConfig struct {
	DSN string
}

// DrinkModel is the gorm row for a drink. The recipe is stored as JSON text.
type DrinkModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Title  string `gorm:"uniqueIndex;not null"`
	Recipe string `gorm:"type:text;not null"`
}

func (DrinkModel) TableName() string {
	return "drinks"
}

func drinkFromModel(m DrinkModel) (*domain.Drink, error) {
	r, err := decodeRecipe(m.Recipe)
	if err != nil {
		return nil, err
	}
	return &domain.Drink{ID: m.ID, Title: m.Title, Recipe: r}, nil
}

// PostgresDrinkRepository implements Repository on Postgres through gorm.
type PostgresDrinkRepository struct {
	db *gorm.DB
}

var _ Repository = (*PostgresDrinkRepository)(nil)

func PostgresDrinkRepositoryFactory(cfg PostgresDrinkRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewPostgresDrinkRepository(cfg)
	}
}

// NewPostgresDrinkRepository connects to cfg.DSN and migrates the schema.
func NewPostgresDrinkRepository(cfg PostgresDrinkRepositoryConfig) (*PostgresDrinkRepository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresDrinkRepositoryWithDB(gdb)
}

// newGormLogger routes gorm's slow-query and error output through the process logger.
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(zap.NewStdLog(logger.Zap()), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// NewPostgresDrinkRepositoryWithDB wraps an existing connection.
func NewPostgresDrinkRepositoryWithDB(gdb *gorm.DB) (*PostgresDrinkRepository, error) {
	if err := gdb.AutoMigrate(&DrinkModel{}); err != nil {
		return nil, fmt.Errorf("migrate drinks: %w", err)
	}
	logger.Info("Connected to Postgres drink store")
	return &PostgresDrinkRepository{db: gdb}, nil
}

func translateGormError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Join(domain.ErrDrinkNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Join(domain.ErrDrinkConflict, err)
	default:
		return err
	}
}

func (r *PostgresDrinkRepository) List(ctx context.Context) ([]domain.Drink, error) {
	var models []DrinkModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query drinks: %w", err)
	}
	out := make([]domain.Drink, 0, len(models))
	for _, m := range models {
		d, err := drinkFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *PostgresDrinkRepository) Get(ctx context.Context, id int64) (*domain.Drink, error) {
	var m DrinkModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("query drink %d: %w", id, translateGormError(err))
	}
	return drinkFromModel(m)
}

func (r *PostgresDrinkRepository) Create(ctx context.Context, d domain.Drink) (*domain.Drink, error) {
	recipe, err := encodeRecipe(d.Recipe)
	if err != nil {
		return nil, err
	}
	m := DrinkModel{Title: d.Title, Recipe: recipe}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("insert drink: %w", translateGormError(err))
	}
	d.ID = m.ID
	return &d, nil
}

func (r *PostgresDrinkRepository) Update(ctx context.Context, id int64, u domain.DrinkUpdate) (*domain.Drink, error) {
	var updated domain.Drink
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m DrinkModel
		if err := tx.First(&m, id).Error; err != nil {
			return translateGormError(err)
		}
		current, err := drinkFromModel(m)
		if err != nil {
			return err
		}
		updated = u.Apply(*current)

		recipe, err := encodeRecipe(updated.Recipe)
		if err != nil {
			return err
		}
		m.Title = updated.Title
		m.Recipe = recipe
		return translateGormError(tx.Save(&m).Error)
	})
	if err != nil {
		return nil, fmt.Errorf("update drink %d: %w", id, err)
	}
	return &updated, nil
}

func (r *PostgresDrinkRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&DrinkModel{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete drink %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete drink %d: %w", id, domain.ErrDrinkNotFound)
	}
	return nil
}

func (r *PostgresDrinkRepository) Reset(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if err := migrator.DropTable(&DrinkModel{}); err != nil {
		return fmt.Errorf("drop drinks: %w", err)
	}
	if err := migrator.CreateTable(&DrinkModel{}); err != nil {
		return fmt.Errorf("create drinks: %w", err)
	}
	return nil
}

func (r *PostgresDrinkRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}
