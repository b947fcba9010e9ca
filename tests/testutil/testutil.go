// Package testutil holds shared test helpers for the rosterlink backend:
// a sqlmock-backed GORM database, gin contexts authenticated as a sync user,
// token issuing, fixtures and polling assertions.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/infrastructure/auth"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TestJWTSecret signs tokens in tests. It is long enough for production validation.
const TestJWTSecret = "rosterlink-test-secret-at-least-32-chars"

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Database
// ---------------------------------------------------------------------------

// MockDB is a GORM postgres handle backed by sqlmock
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB opens a mock database that is closed on test cleanup
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}),
		&gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err, "Failed to open GORM connection")

	m := &MockDB{DB: gormDB, Mock: mock, SqlDB: sqlDB}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return m
}

// ExpectationsWereMet fails the test on unmet SQL expectations
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// ---------------------------------------------------------------------------
// Gin
// ---------------------------------------------------------------------------

// TestContext is a gin context plus the recorder it writes to
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
}

// NewTestContext builds a gin context for one request
func NewTestContext(t *testing.T, method, path string, body io.Reader) *TestContext {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return &TestContext{Context: c, Recorder: w}
}

// SetRequestID stores id where the RequestID middleware keeps it
func (tc *TestContext) SetRequestID(id string) {
	tc.Context.Set(middleware.RequestIDContextKey, id)
}

// SetUser authenticates the context as userID, as the JWT middleware would
func (tc *TestContext) SetUser(userID uuid.UUID) {
	tc.Context.Set(middleware.JWTClaimsKey, &auth.Claims{UserID: userID.String()})
	tc.Context.Set(middleware.JWTUserIDKey, userID.String())
}

// SetPlatform fills the :platform route parameter
func (tc *TestContext) SetPlatform(code string) {
	tc.Context.Params = append(tc.Context.Params, gin.Param{Key: "platform", Value: code})
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// NewTestUUID derives a stable UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("rosterlink:"+seed))
}

// TestUserID is the default sync user
func TestUserID() uuid.UUID {
	return NewTestUUID("test-user")
}

// JWTConfig returns the token settings matching TestJWTSecret
func JWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: TestJWTSecret, AccessTokenExpiration: time.Hour, Issuer: "rosterlink-test"}
}

// IssueToken signs a bearer token for userID
func IssueToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	issued, err := auth.NewJWTService(JWTConfig()).Issue(userID, "test-device")
	require.NoError(t, err)
	return issued.AccessToken
}

// ---------------------------------------------------------------------------
// Timing
// ---------------------------------------------------------------------------

// ContextWithTimeout returns a context cancelled on cleanup or after timeout
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// RequireEventually polls condition until it holds, failing after timeout
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); time.Sleep(interval) {
		if condition() {
			return
		}
	}
	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}

// AssertNever fails if condition holds at any poll during duration.
// Used to prove a debounced push has not fired yet.
func AssertNever(t *testing.T, condition func() bool, duration, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	for deadline := time.Now().Add(duration); time.Now().Before(deadline); time.Sleep(interval) {
		if condition() {
			require.Fail(t, "Condition unexpectedly became true", msgAndArgs...)
			return
		}
	}
}
