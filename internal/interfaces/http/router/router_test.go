package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appfacility "github.com/rosterlink/backend/internal/application/facility"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/infrastructure/auth"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// -----------------------------------------------------------------------------
// Router / DomainGroup
// -----------------------------------------------------------------------------

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var hits []string
	r.Use(func(c *gin.Context) {
		hits = append(hits, c.FullPath())
		c.Next()
	})
	r.Register(NewDomainGroup("test", "/test").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	}))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, []string{"/api/v1/test/ping"}, hits)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("sync", "/sync")
		assert.Equal(t, "sync", g.Name())
		assert.Equal(t, "/sync", g.Prefix())
	})

	t.Run("registers every method", func(t *testing.T) {
		engine := gin.New()
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		NewDomainGroup("items", "/items").
			GET("", ok).POST("", ok).PUT("/:id", ok).DELETE("/:id", ok).
			RegisterRoutes(engine.Group("/api/v1"))

		tests := []struct{ method, path string }{
			{http.MethodGet, "/api/v1/items"},
			{http.MethodPost, "/api/v1/items"},
			{http.MethodPut, "/api/v1/items/1"},
			{http.MethodDelete, "/api/v1/items/1"},
		}
		for _, tt := range tests {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusOK, w.Code, tt.method)
			assert.Equal(t, tt.method, w.Body.String())
		}
	})

	t.Run("group middleware runs before handlers", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("guarded", "/guarded").
			Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }).
			GET("", func(c *gin.Context) { c.Status(http.StatusOK) }).
			RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/guarded", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

type memorySettings struct {
	mu   sync.Mutex
	docs map[uuid.UUID]settings.SyncDocument
}

func (m *memorySettings) Get(_ context.Context, userID uuid.UUID) (settings.SyncDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[userID], nil
}

func (m *memorySettings) Put(_ context.Context, userID uuid.UUID, doc settings.SyncDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[userID] = doc
	return nil
}

func (m *memorySettings) Delete(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, userID)
	return nil
}

// rejectingFacilities refuses every login
type rejectingFacilities struct{}

func (rejectingFacilities) Platforms() []integration.PlatformCode {
	return []integration.PlatformCode{integration.PlatformCodeResourceAPI}
}

func (rejectingFacilities) Authenticate(context.Context, appfacility.AuthenticateInput) (*integration.AuthResult, error) {
	return nil, integration.NewError(integration.ErrorKindInvalidCredentials, "login", http.StatusUnauthorized, nil)
}

func (rejectingFacilities) ImportActivities(context.Context, appfacility.ImportActivitiesInput) (*appfacility.ActivitiesResult, error) {
	return &appfacility.ActivitiesResult{}, nil
}

func (rejectingFacilities) ImportOrders(context.Context, appfacility.ImportOrdersInput) (*appfacility.OrdersResult, error) {
	return &appfacility.OrdersResult{}, nil
}

func (rejectingFacilities) ReadPublicCatalog(context.Context, appfacility.CatalogInput) ([]integration.Session, error) {
	return nil, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:                "router-test-secret-router-test-secret",
			AccessTokenExpiration: time.Hour,
			Issuer:                "rosterlink-test",
		},
		HTTP: config.HTTPConfig{
			MaxBodySize:       1 << 20,
			AuthRatePerMinute: 1,
			AuthRateBurst:     2,
		},
	}
}

func newTestEngine(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	cfg := testConfig()
	tokens := auth.NewJWTService(cfg.JWT)
	engine, err := NewEngine(Dependencies{
		Config:     cfg,
		Tokens:     tokens,
		Facilities: rejectingFacilities{},
		Settings:   &memorySettings{docs: map[uuid.UUID]settings.SyncDocument{}},
		DB:         okPinger{},
		Version:    "test",
	})
	require.NoError(t, err)
	return engine, tokens
}

func serve(engine http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestEngine_HealthIsPublic(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := serve(engine, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestEngine_APIRequiresToken(t *testing.T) {
	engine, _ := newTestEngine(t)

	for _, path := range []string{"/api/v1/sync", "/api/v1/facilities"} {
		w := serve(engine, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestEngine_SyncRoundTrip(t *testing.T) {
	engine, tokens := newTestEngine(t)
	issued, err := tokens.Issue(uuid.New(), "device-1")
	require.NoError(t, err)

	w := serve(engine, http.MethodGet, "/api/v1/sync", issued.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"settings":null}}`, w.Body.String())

	w = serve(engine, http.MethodPut, "/api/v1/sync", issued.AccessToken, `{"settings":{"theme":"dark"}}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = serve(engine, http.MethodGet, "/api/v1/sync", issued.AccessToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"settings":{"theme":"dark"}}}`, w.Body.String())

	w = serve(engine, http.MethodDelete, "/api/v1/sync", issued.AccessToken, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEngine_ListPlatforms(t *testing.T) {
	engine, tokens := newTestEngine(t)
	issued, err := tokens.Issue(uuid.New(), "")
	require.NoError(t, err)

	w := serve(engine, http.MethodGet, "/api/v1/facilities", issued.AccessToken, "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Platforms []string `json:"platforms"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"RESOURCE_API"}, resp.Data.Platforms)
}

func TestEngine_AuthenticateIsRateLimited(t *testing.T) {
	engine, tokens := newTestEngine(t)
	issued, err := tokens.Issue(uuid.New(), "")
	require.NoError(t, err)
	body := `{"facility":{"facility_id":"riverside"},"email":"parent@example.com","secret":"hunter2"}`

	for i := 0; i < 2; i++ {
		w := serve(engine, http.MethodPost, "/api/v1/facilities/RESOURCE_API/authenticate", issued.AccessToken, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := serve(engine, http.MethodPost, "/api/v1/facilities/RESOURCE_API/authenticate", issued.AccessToken, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
