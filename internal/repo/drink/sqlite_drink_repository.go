package drink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/AmeenMohammed/coffee-shop/internal/domain"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
)

// SQLiteDrinkRepositoryConfig holds configuration for the SQLite drink repository.
type SQLiteDrinkRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string
}

// SQLiteDrinkRepository implements Repository using SQLite as the storage backend.
type SQLiteDrinkRepository struct {
	db        *sql.DB
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteDrinkRepository)(nil)

func SQLiteDrinkRepositoryFactory(cfg SQLiteDrinkRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteDrinkRepository(cfg)
	}
}

// NewSQLiteDrinkRepository opens the database and creates the schema if needed.
func NewSQLiteDrinkRepository(cfg SQLiteDrinkRepositoryConfig) (_ *SQLiteDrinkRepository, err error) {
	db, err := sql.Open("sqlite", sqliteDSN(cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Opened SQLite drink store at %s", cfg.DatabasePath)
	return &SQLiteDrinkRepository{
		db:        db,
		writeLock: new(sync.Mutex),
	}, nil
}

// sqliteDSN applies the busy timeout to every pooled connection.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMillis) + ")"
}

const busyTimeoutMillis = 5000

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS drinks (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			title  TEXT    UNIQUE NOT NULL,
			recipe TEXT    NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrink(row rowScanner) (*domain.Drink, error) {
	var (
		d      domain.Drink
		recipe string
	)
	if err := row.Scan(&d.ID, &d.Title, &recipe); err != nil {
		return nil, err
	}
	r, err := decodeRecipe(recipe)
	if err != nil {
		return nil, err
	}
	d.Recipe = r
	return &d, nil
}

func translateError(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return errors.Join(domain.ErrDrinkConflict, err)
		default:
			break
		}
	}
	return err
}

func (r *SQLiteDrinkRepository) List(ctx context.Context) ([]domain.Drink, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, title, recipe FROM drinks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query drinks: %w", err)
	}
	defer rows.Close()

	drinks := []domain.Drink{}
	for rows.Next() {
		d, err := scanDrink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drink: %w", err)
		}
		drinks = append(drinks, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drinks: %w", err)
	}
	return drinks, nil
}

func (r *SQLiteDrinkRepository) Get(ctx context.Context, id int64) (*domain.Drink, error) {
	return r.get(ctx, r.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteDrinkRepository) get(ctx context.Context, q querier, id int64) (*domain.Drink, error) {
	d, err := scanDrink(q.QueryRowContext(ctx, "SELECT id, title, recipe FROM drinks WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrDrinkNotFound, err)
		}
		return nil, fmt.Errorf("query drink %d: %w", id, err)
	}
	return d, nil
}

func (r *SQLiteDrinkRepository) Create(ctx context.Context, d domain.Drink) (*domain.Drink, error) {
	recipe, err := encodeRecipe(d.Recipe)
	if err != nil {
		return nil, err
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.ExecContext(ctx, "INSERT INTO drinks (title, recipe) VALUES (?, ?)", d.Title, recipe)
	if err != nil {
		return nil, fmt.Errorf("insert drink: %w", translateError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert drink: %w", err)
	}
	d.ID = id
	return &d, nil
}

func (r *SQLiteDrinkRepository) Update(ctx context.Context, id int64, u domain.DrinkUpdate) (_ *domain.Drink, err error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated := u.Apply(*current)

	recipe, err := encodeRecipe(updated.Recipe)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE drinks SET title = ?, recipe = ? WHERE id = ?", updated.Title, recipe, id); err != nil {
		return nil, fmt.Errorf("update drink %d: %w", id, translateError(err))
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &updated, nil
}

func (r *SQLiteDrinkRepository) Delete(ctx context.Context, id int64) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM drinks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete drink %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete drink %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete drink %d: %w", id, domain.ErrDrinkNotFound)
	}
	return nil
}

func (r *SQLiteDrinkRepository) Reset(ctx context.Context) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS drinks"); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return initializeDB(r.db)
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteDrinkRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
