package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetCategories retrieves all categories
func (s *Store) GetCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY id")
	return categories, err
}

// CreateCategory creates a new category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	return s.db.GetContext(ctx, &category.ID,
		"INSERT INTO categories (name) VALUES ($1) RETURNING id", category.Name)
}

// UpsertCategory inserts a category with an explicit id, updating the name
// when the id already exists. Used by price list import.
func (s *Store) UpsertCategory(ctx context.Context, category *models.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		category.ID, category.Name)
	return err
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByName retrieves a product by its exact name
func (s *Store) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE name = $1", name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpsertProduct inserts a product keyed by exact name, updating the
// description and category when it already exists.
func (s *Store) UpsertProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, category_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, category_id = EXCLUDED.category_id
		RETURNING id, created_at`

	return s.db.GetContext(ctx, product, query,
		product.Name, product.Description, product.CategoryID)
}

// UpdateProductDescription updates a product's description
func (s *Store) UpdateProductDescription(ctx context.Context, productID int64, description string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET description = $1 WHERE id = $2", description, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
	}
	return nil
}

// UpsertPrice inserts or updates the (product, provider) price row
func (s *Store) UpsertPrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prices (product_id, provider_id, price) VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, provider_id) DO UPDATE SET price = EXCLUDED.price`,
		productID, providerID, price)
	return err
}

// UpdatePrice updates an existing (product, provider) price row
func (s *Store) UpdatePrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE prices SET price = $1 WHERE product_id = $2 AND provider_id = $3",
		price, productID, providerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product=%d provider=%d", models.ErrPriceNotFound, productID, providerID)
	}
	return nil
}

// GetPrice resolves the unit price for a (product, provider) pair
func (s *Store) GetPrice(ctx context.Context, productID, providerID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := s.db.GetContext(ctx, &price,
		"SELECT price FROM prices WHERE product_id = $1 AND provider_id = $2",
		productID, providerID)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: product=%d provider=%d", models.ErrPriceNotFound, productID, providerID)
	}
	return price, err
}

// GetPricesByProductID retrieves all provider offers for a product
func (s *Store) GetPricesByProductID(ctx context.Context, productID int64) ([]models.ProviderPrice, error) {
	var prices []models.ProviderPrice
	err := s.db.SelectContext(ctx, &prices,
		`SELECT p.provider_id, u.username AS provider, p.price
		 FROM prices p JOIN users u ON u.id = p.provider_id
		 WHERE p.product_id = $1 ORDER BY p.provider_id`, productID)
	return prices, err
}

// CountPricesByProduct returns the number of price rows for a product
func (s *Store) CountPricesByProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM prices WHERE product_id = $1", productID)
	return count, err
}
