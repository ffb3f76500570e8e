package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogStore struct {
	categories map[int64]models.Category
	products   map[string]*models.Product
	prices     map[priceKey]decimal.Decimal
	providers  map[int64]string
	nextID     int64
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		categories: map[int64]models.Category{},
		products:   map[string]*models.Product{},
		prices:     map[priceKey]decimal.Decimal{},
		providers:  map[int64]string{},
	}
}

func (f *fakeCatalogStore) GetCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	for _, c := range f.categories {
		cats = append(cats, c)
	}
	return cats, nil
}

func (f *fakeCatalogStore) CreateCategory(ctx context.Context, category *models.Category) error {
	f.nextID++
	category.ID = f.nextID
	f.categories[category.ID] = *category
	return nil
}

func (f *fakeCatalogStore) UpsertCategory(ctx context.Context, category *models.Category) error {
	f.categories[category.ID] = *category
	return nil
}

func (f *fakeCatalogStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	for _, p := range f.products {
		products = append(products, *p)
	}
	return products, nil
}

func (f *fakeCatalogStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
}

func (f *fakeCatalogStore) UpsertProduct(ctx context.Context, product *models.Product) error {
	if existing, ok := f.products[product.Name]; ok {
		existing.Description = product.Description
		existing.CategoryID = product.CategoryID
		product.ID = existing.ID
		return nil
	}
	f.nextID++
	product.ID = f.nextID
	stored := *product
	f.products[product.Name] = &stored
	return nil
}

func (f *fakeCatalogStore) UpdateProductDescription(ctx context.Context, productID int64, description string) error {
	for _, p := range f.products {
		if p.ID == productID {
			p.Description = description
			return nil
		}
	}
	return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
}

func (f *fakeCatalogStore) UpsertPrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error {
	f.prices[priceKey{productID, providerID}] = price
	return nil
}

func (f *fakeCatalogStore) UpdatePrice(ctx context.Context, productID, providerID int64, price decimal.Decimal) error {
	key := priceKey{productID, providerID}
	if _, ok := f.prices[key]; !ok {
		return fmt.Errorf("%w: product=%d provider=%d", models.ErrPriceNotFound, productID, providerID)
	}
	f.prices[key] = price
	return nil
}

func (f *fakeCatalogStore) GetPricesByProductID(ctx context.Context, productID int64) ([]models.ProviderPrice, error) {
	var prices []models.ProviderPrice
	for key, price := range f.prices {
		if key.productID == productID {
			prices = append(prices, models.ProviderPrice{
				ProviderID: key.providerID,
				Provider:   f.providers[key.providerID],
				Price:      price,
			})
		}
	}
	return prices, nil
}

type fakeCatalogCache struct {
	payload     []byte
	invalidated int
}

func (f *fakeCatalogCache) CacheProductList(ctx context.Context, payload []byte, ttl time.Duration) error {
	f.payload = payload
	return nil
}

func (f *fakeCatalogCache) GetProductList(ctx context.Context) ([]byte, error) {
	return f.payload, nil
}

func (f *fakeCatalogCache) InvalidateProductList(ctx context.Context) error {
	f.payload = nil
	f.invalidated++
	return nil
}

const priceListYAML = `
shop: Связной
categories:
  - id: 1
    name: Смартфоны
  - id: 15
    name: Аксессуары
goods:
  - name: Смартфон Apple iPhone XS Max 512GB (золотистый)
    category: 1
    price: 110000
    parameters:
      "Диагональ (дюйм)": 6.5
      "Встроенная память (Гб)": 512
  - name: Смартфон Apple iPhone XR 256GB (красный)
    category: 1
    price: 65000
    parameters:
      "Диагональ (дюйм)": 6.1
`

func importFixture() (*CatalogService, *fakeCatalogStore, *fakeCatalogCache, *models.User) {
	fs := newFakeCatalogStore()
	cache := &fakeCatalogCache{}
	provider := &models.User{ID: 10, Username: "Связной", Email: "shop@example.com", IsStaff: true, IsActive: true}
	fs.providers[provider.ID] = provider.Username
	return NewCatalogService(fs, cache), fs, cache, provider
}

func TestImportPriceList(t *testing.T) {
	svc, fs, cache, provider := importFixture()

	result, err := svc.ImportPriceList(context.Background(), provider, []byte(priceListYAML))
	require.NoError(t, err)

	assert.Equal(t, "Связной", result.Shop)
	assert.Equal(t, 2, result.Categories)
	assert.Equal(t, 2, result.Goods)

	assert.Len(t, fs.categories, 2)
	assert.Equal(t, "Смартфоны", fs.categories[1].Name)
	assert.Len(t, fs.products, 2)
	assert.Len(t, fs.prices, 2)

	product := fs.products["Смартфон Apple iPhone XR 256GB (красный)"]
	require.NotNil(t, product)
	assert.True(t, fs.prices[priceKey{product.ID, provider.ID}].Equal(decimal.NewFromInt(65000)))
	assert.Contains(t, product.Description, "Диагональ (дюйм): 6.1")

	assert.Equal(t, 1, cache.invalidated, "import must invalidate the cached product list")
}

func TestImportPriceListIsIdempotent(t *testing.T) {
	svc, fs, _, provider := importFixture()

	_, err := svc.ImportPriceList(context.Background(), provider, []byte(priceListYAML))
	require.NoError(t, err)

	// Re-import with a changed price: no duplicates, the price row updates.
	updated := []byte(`
shop: Связной
categories:
  - id: 1
    name: Смартфоны
goods:
  - name: Смартфон Apple iPhone XR 256GB (красный)
    category: 1
    price: 60000
`)
	_, err = svc.ImportPriceList(context.Background(), provider, updated)
	require.NoError(t, err)

	assert.Len(t, fs.products, 2, "re-import must not duplicate products")
	product := fs.products["Смартфон Apple iPhone XR 256GB (красный)"]
	assert.True(t, fs.prices[priceKey{product.ID, provider.ID}].Equal(decimal.NewFromInt(60000)))
}

func TestImportRejectedForWrongShop(t *testing.T) {
	svc, fs, _, _ := importFixture()

	other := &models.User{ID: 11, Username: "Евросеть", IsStaff: true, IsActive: true}
	_, err := svc.ImportPriceList(context.Background(), other, []byte(priceListYAML))
	require.ErrorIs(t, err, models.ErrImportRejected)
	assert.Empty(t, fs.products)
}

func TestImportRejectedForNonStaff(t *testing.T) {
	svc, _, _, _ := importFixture()

	buyer := &models.User{ID: 1, Username: "Связной", IsActive: true}
	_, err := svc.ImportPriceList(context.Background(), buyer, []byte(priceListYAML))
	require.ErrorIs(t, err, models.ErrImportRejected)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	svc, _, _, provider := importFixture()

	_, err := svc.ImportPriceList(context.Background(), provider, []byte("shop: [not: valid"))
	_, ok := models.AsValidationError(err)
	assert.True(t, ok, "expected a validation error, got %v", err)
}

func TestListProductsUsesCache(t *testing.T) {
	svc, fs, cache, provider := importFixture()

	_, err := svc.ImportPriceList(context.Background(), provider, []byte(priceListYAML))
	require.NoError(t, err)

	first, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 2)
	require.NotNil(t, cache.payload, "listing must prime the cache")

	// Mutate the store behind the cache's back: the cached list still serves.
	delete(fs.products, "Смартфон Apple iPhone XR 256GB (красный)")
	second, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestUpdateProduct(t *testing.T) {
	svc, fs, cache, provider := importFixture()

	_, err := svc.ImportPriceList(context.Background(), provider, []byte(priceListYAML))
	require.NoError(t, err)
	product := fs.products["Смартфон Apple iPhone XR 256GB (красный)"]

	buyer := &models.User{ID: 1, Username: "foo", IsActive: true}
	_, err = svc.UpdateProduct(context.Background(), buyer, product.ID, &UpdateProductRequest{
		Price: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, models.ErrNotOwner)

	// A provider without a price row on this product cannot create one here.
	other := &models.User{ID: 11, Username: "Евросеть", IsStaff: true, IsActive: true}
	_, err = svc.UpdateProduct(context.Background(), other, product.ID, &UpdateProductRequest{
		Price: decimal.NewFromInt(59000),
	})
	require.ErrorIs(t, err, models.ErrPriceNotFound)

	updated, err := svc.UpdateProduct(context.Background(), provider, product.ID, &UpdateProductRequest{
		Price:       decimal.NewFromInt(59000),
		Description: "уценка",
	})
	require.NoError(t, err)
	assert.Equal(t, "уценка", updated.Description)
	assert.True(t, fs.prices[priceKey{product.ID, provider.ID}].Equal(decimal.NewFromInt(59000)))
	assert.GreaterOrEqual(t, cache.invalidated, 2)
}

func TestRenderParametersIsStable(t *testing.T) {
	params := map[string]interface{}{
		"b": 2,
		"a": "x",
		"c": 1.5,
	}
	first := renderParameters(params)
	assert.Equal(t, "a: x\nb: 2\nc: 1.5", first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, renderParameters(params))
	}
}

func TestCreateCategoryRequiresStaff(t *testing.T) {
	svc, fs, _, provider := importFixture()

	buyer := &models.User{ID: 1, Username: "foo", IsActive: true}
	_, err := svc.CreateCategory(context.Background(), buyer, &CreateCategoryRequest{Name: "Ноутбуки"})
	require.ErrorIs(t, err, models.ErrNotOwner)

	cat, err := svc.CreateCategory(context.Background(), provider, &CreateCategoryRequest{Name: "Ноутбуки"})
	require.NoError(t, err)
	assert.NotZero(t, cat.ID)
	assert.Len(t, fs.categories, 1)
}
