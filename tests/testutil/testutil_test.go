package testutil

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/infrastructure/auth"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	mockDB.ExpectationsWereMet(t)
}

func TestTestContext(t *testing.T) {
	tc := NewTestContext(t, http.MethodPut, "/api/v1/sync", strings.NewReader(`{"settings":{}}`))
	assert.Equal(t, http.MethodPut, tc.Context.Request.Method)
	assert.Equal(t, "application/json", tc.Context.Request.Header.Get("Content-Type"))

	tc.SetRequestID("req-123")
	assert.Equal(t, "req-123", middleware.GetRequestID(tc.Context))

	user := TestUserID()
	tc.SetUser(user)
	assert.Equal(t, user.String(), middleware.GetJWTUserID(tc.Context))
	require.NotNil(t, middleware.GetJWTClaims(tc.Context))

	tc.SetPlatform("STOREFRONT")
	assert.Equal(t, "STOREFRONT", tc.Context.Param("platform"))

	tc.Context.Status(http.StatusNoContent)
	tc.Context.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, tc.Recorder.Code)
}

func TestIssueToken(t *testing.T) {
	user := NewTestUUID("token-user")
	token := IssueToken(t, user)

	claims, err := auth.NewJWTService(JWTConfig()).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.UserID)
	assert.Equal(t, "test-device", claims.DeviceID)
}

func TestNewTestUUID(t *testing.T) {
	assert.Equal(t, NewTestUUID("seed"), NewTestUUID("seed"))
	assert.NotEqual(t, NewTestUUID("seed"), NewTestUUID("other"))
	assert.NotEqual(t, uuid.Nil, TestUserID())
}

func TestContextWithTimeout(t *testing.T) {
	ctx := ContextWithTimeout(t, time.Minute)
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
}

func TestRequireEventually(t *testing.T) {
	calls := 0
	RequireEventually(t, func() bool {
		calls++
		return calls >= 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, calls)
}

func TestAssertNever(t *testing.T) {
	AssertNever(t, func() bool { return false }, 20*time.Millisecond, 5*time.Millisecond)
}

func TestRequestHelpers(t *testing.T) {
	engine := gin.New()
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}
		body["auth"] = c.GetHeader("Authorization")
		c.JSON(http.StatusOK, gin.H{"success": true, "data": body})
	})

	w := Request(t, engine, http.MethodPost, "/echo", "tok", map[string]string{"name": "Jane"})
	data := DecodeData[map[string]string](t, w)
	assert.Equal(t, "Jane", data["name"])
	assert.Equal(t, "Bearer tok", data["auth"])

	w = Request(t, engine, http.MethodPost, "/echo", "", "{not json")
	AssertErrorResponse(t, w, http.StatusBadRequest, "BAD_REQUEST")
}

func TestFixtures(t *testing.T) {
	a, b := NewFixtures(7), NewFixtures(7)
	assert.Equal(t, a.Roster(3), b.Roster(3))

	doc := NewFixtures(1).Document(t)
	for _, field := range []string{settings.FieldTheme, settings.FieldRoster, settings.FieldFacilityCredentials, settings.FieldDeviceID} {
		assert.Contains(t, doc, field)
	}

	cred := NewFixtures(2).Credential(integration.PlatformCodeStorefront)
	assert.NotEmpty(t, cred.SecretCredential)
	assert.NotEmpty(t, cred.SessionToken)
	assert.Equal(t, integration.PlatformCodeStorefront, cred.Platform)
}
