package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/receipt"
	"github.com/xenking/pos-checkout/pkg/health"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	return &Config{
		Addr:      defaultAddr,
		Auth:      AuthConfig{Secret: "0123456789abcdef"},
		Report:    ReportConfig{Timezone: "UTC"},
		Journal:   JournalConfig{Failures: 5, Cooldown: time.Second},
		RateLimit: RateLimitConfig{Max: 2, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"https://till.example.com"}},
	}
}

func TestLoadCatalog_Seed(t *testing.T) {
	products, err := LoadCatalog(filepath.Join("..", "..", "db", "seed", "catalog.json"))
	require.NoError(t, err)
	require.NotEmpty(t, products)

	byID := make(map[string]product.Product)
	for _, p := range products {
		byID[p.ID] = p
	}
	lentils := byID["P-1003"]
	assert.Equal(t, product.UnitWeight, lentils.Unit)
	assert.True(t, decimal.RequireFromString("42.5").Equal(lentils.Quantity))
	assert.True(t, byID["P-1001"].Regular)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "missing id", content: `[{"name":"x","sellingPrice":"1"}]`, errMsg: "id is required"},
		{name: "duplicate id", content: `[{"id":"a"},{"id":"a"}]`, errMsg: "duplicate product id"},
		{name: "unknown unit", content: `[{"id":"a","unit":"crate"}]`, errMsg: "unknown unit"},
		{name: "negative price", content: `[{"id":"a","sellingPrice":"-1"}]`, errMsg: "must not be negative"},
		{name: "fractional count", content: `[{"id":"a","unit":"count","quantity":"1.5"}]`, errMsg: "not a valid count amount"},
		{name: "not an array", content: `{"id":"a"}`, errMsg: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadCatalog_DefaultUnit(t *testing.T) {
	products, err := LoadCatalog(writeFile(t, `[{"id":"a","sellingPrice":2,"quantity":3,"extra":{"x":1}}]`))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, product.UnitCount, products[0].Unit)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Auth.Secret = "short"
	assert.ErrorContains(t, cfg.Validate(), "auth secret")

	cfg = validConfig()
	cfg.Report.Timezone = "Mars/Olympus"
	assert.ErrorContains(t, cfg.Validate(), "report timezone")

	cfg = validConfig()
	cfg.Journal.Dir = t.TempDir()
	cfg.Journal.Failures = 0
	assert.ErrorContains(t, cfg.Validate(), "breaker failures")

	cfg = validConfig()
	cfg.RateLimit.Window = 0
	assert.ErrorContains(t, cfg.Validate(), "rate limit window")

	cfg.RateLimit.Max = 0
	assert.NoError(t, cfg.Validate())
}

func TestAPIMiddleware(t *testing.T) {
	var calls int
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := APIMiddleware(t.Context(), validConfig(), api)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	preflight.Header.Set("Origin", "https://till.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, preflight)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://till.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Zero(t, calls)

	// Requests without a token still spend the client's budget.
	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		req.RemoteAddr = "10.1.1.1:4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, 2, calls)
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://pos@db/pos")
	t.Setenv("PORT", "9090")

	cfg := validConfig()
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://pos@db/pos", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:8000"
	cfg.DatabaseURL = "postgres://explicit"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
}

func TestOpenStorage_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()
	cfg.CatalogSeed = writeFile(t, `[{"id":"a","barcode":"111","sellingPrice":"2.50","quantity":4}]`)

	s, err := OpenStorage(ctx, cfg, health.New())
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Catalog.GetByBarcode(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)

	require.NoError(t, s.Stock.TryDecrement(ctx, "a", decimal.NewFromInt(3)))
	q, err := s.Stock.Quantity(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(q))
}

func TestOpenStorage_BadSeed(t *testing.T) {
	cfg := validConfig()
	cfg.CatalogSeed = filepath.Join(t.TempDir(), "missing.json")

	_, err := OpenStorage(context.Background(), cfg, health.New())
	require.ErrorContains(t, err, "seed catalog")
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()

	sink, closeFn, err := openSink(ctx, cfg, time.UTC)
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, receipt.SinkFunc(nil), sink)

	cfg.Journal.Dir = t.TempDir()
	sink, closeFn, err = openSink(ctx, cfg, time.UTC)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &receipt.Breaker{}, sink)
}
