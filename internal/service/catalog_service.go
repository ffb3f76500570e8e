package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const productListCacheTTL = 30 * time.Second

// CatalogStore is the slice of the store the catalog needs.
type CatalogStore interface {
	GetCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	UpsertCategory(ctx context.Context, category *models.Category) error
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	UpsertProduct(ctx context.Context, product *models.Product) error
	UpdateProductDescription(ctx context.Context, productID int64, description string) error
	UpsertPrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error
	UpdatePrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error
	GetPricesByProductID(ctx context.Context, productID int64) ([]models.ProviderPrice, error)
}

// CatalogCache caches the rendered product list.
type CatalogCache interface {
	CacheProductList(ctx context.Context, payload []byte, ttl time.Duration) error
	GetProductList(ctx context.Context) ([]byte, error)
	InvalidateProductList(ctx context.Context) error
}

// CatalogService handles the product catalog and price list imports
type CatalogService struct {
	store  CatalogStore
	cache  CatalogCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache CatalogCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ProductWithPrices is a product together with all provider offers
type ProductWithPrices struct {
	models.Product
	ProvidersInfo []models.ProviderPrice `json:"providers_info"`
}

// PriceList is the uploaded catalog import document
type PriceList struct {
	Shop       string          `yaml:"shop"`
	Categories []PriceListCat  `yaml:"categories"`
	Goods      []PriceListGood `yaml:"goods"`
}

// PriceListCat is one imported category
type PriceListCat struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// PriceListGood is one imported good
type PriceListGood struct {
	Name       string                 `yaml:"name"`
	Category   int64                  `yaml:"category"`
	Price      float64                `yaml:"price"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// ListProducts returns all products with their provider prices. The rendered
// list is cached in Redis with a short TTL; a cache failure falls through to
// the database.
func (s *CatalogService) ListProducts(ctx context.Context) ([]ProductWithPrices, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if cached, err := s.cache.GetProductList(ctx); err != nil {
		s.logger.Warn("Product list cache read failed", zap.Error(err))
	} else if cached != nil {
		var result []ProductWithPrices
		if err := json.Unmarshal(cached, &result); err == nil {
			return result, nil
		}
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]ProductWithPrices, 0, len(products))
	for _, product := range products {
		prices, err := s.store.GetPricesByProductID(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, ProductWithPrices{Product: product, ProvidersInfo: prices})
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.CacheProductList(ctx, payload, productListCacheTTL); err != nil {
			s.logger.Warn("Product list cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// GetProduct returns one product with its provider prices
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*ProductWithPrices, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	prices, err := s.store.GetPricesByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ProductWithPrices{Product: *product, ProvidersInfo: prices}, nil
}

// UpdateProductRequest updates a provider's own price and the description
type UpdateProductRequest struct {
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// UpdateProduct lets a provider update its own price row and the product
// description. Providers cannot touch other providers' prices.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor *models.User, productID int64, req *UpdateProductRequest) (*ProductWithPrices, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if !actor.IsStaff && !actor.IsSuperuser {
		return nil, fmt.Errorf("%w: only providers may update products", models.ErrNotOwner)
	}

	if req.Price.IsNegative() {
		return nil, models.NewValidationError("price", "must not be negative")
	}

	if err := s.store.UpdatePrice(ctx, productID, actor.ID, req.Price); err != nil {
		return nil, err
	}

	if req.Description != "" {
		if err := s.store.UpdateProductDescription(ctx, productID, req.Description); err != nil {
			return nil, err
		}
	}

	if err := s.cache.InvalidateProductList(ctx); err != nil {
		s.logger.Warn("Product list cache invalidation failed", zap.Error(err))
	}

	return s.GetProduct(ctx, productID)
}

// ImportResult summarizes a processed price list
type ImportResult struct {
	Shop       string `json:"shop"`
	Categories int    `json:"categories"`
	Goods      int    `json:"goods"`
}

// ImportPriceList upserts the categories, products, and the acting
// provider's prices from an uploaded price list. The acting identity must be
// staff and must match the shop named in the document.
func (s *CatalogService) ImportPriceList(ctx context.Context, actor *models.User, data []byte) (*ImportResult, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ImportPriceList")
	defer span.End()

	var list PriceList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, models.NewValidationError("file", fmt.Sprintf("invalid price list: %v", err))
	}

	if !actor.IsStaff {
		return nil, fmt.Errorf("%w: importing requires a provider account", models.ErrImportRejected)
	}
	if list.Shop != actor.Username {
		return nil, fmt.Errorf("%w: list is for %q, authenticated as %q",
			models.ErrImportRejected, list.Shop, actor.Username)
	}

	for _, cat := range list.Categories {
		category := models.Category{ID: cat.ID, Name: cat.Name}
		if err := s.store.UpsertCategory(ctx, &category); err != nil {
			return nil, fmt.Errorf("failed to upsert category %d: %w", cat.ID, err)
		}
	}

	for _, good := range list.Goods {
		product := models.Product{
			Name:        good.Name,
			Description: renderParameters(good.Parameters),
			CategoryID:  good.Category,
		}
		if err := s.store.UpsertProduct(ctx, &product); err != nil {
			return nil, fmt.Errorf("failed to upsert product %q: %w", good.Name, err)
		}

		price := decimal.NewFromFloat(good.Price)
		if err := s.store.UpsertPrice(ctx, product.ID, actor.ID, price); err != nil {
			return nil, fmt.Errorf("failed to upsert price for %q: %w", good.Name, err)
		}
	}

	util.CatalogImportsTotal.Inc()
	util.CatalogImportGoodsTotal.Add(float64(len(list.Goods)))

	if err := s.cache.InvalidateProductList(ctx); err != nil {
		s.logger.Warn("Product list cache invalidation failed", zap.Error(err))
	}

	s.logger.Info("Price list imported",
		zap.String("shop", list.Shop),
		zap.Int("categories", len(list.Categories)),
		zap.Int("goods", len(list.Goods)))

	return &ImportResult{
		Shop:       list.Shop,
		Categories: len(list.Categories),
		Goods:      len(list.Goods),
	}, nil
}

// renderParameters flattens the free-form parameter map into the product
// description, sorted by key so re-imports are stable.
func renderParameters(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, params[k]))
	}
	return strings.Join(lines, "\n")
}

// ListCategories returns all categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.GetCategories(ctx)
}

// CreateCategoryRequest creates a category outside of an import
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateCategory creates a category. Staff only.
func (s *CatalogService) CreateCategory(ctx context.Context, actor *models.User, req *CreateCategoryRequest) (*models.Category, error) {
	if !actor.IsStaff && !actor.IsSuperuser {
		return nil, fmt.Errorf("%w: only staff may create categories", models.ErrNotOwner)
	}
	category := models.Category{Name: req.Name}
	if err := s.store.CreateCategory(ctx, &category); err != nil {
		return nil, err
	}
	return &category, nil
}
