package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/infrastructure/auth"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rosterctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTokenCommand(t *testing.T) {
	const secret = "rosterctl-test-secret-rosterctl-test"
	path := writeConfig(t, `
[jwt]
secret = "`+secret+`"
access_token_expiration = "1h"
issuer = "rosterlink"
`)
	user := uuid.New()

	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--config", path, "-o", "json", "--user", user.String(), "--device", "laptop"})
	require.NoError(t, root.Execute())
	a.close()

	var got tokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, user.String(), got.UserID)

	claims, err := auth.NewJWTService(config.JWTConfig{Secret: secret, AccessTokenExpiration: time.Hour, Issuer: "rosterlink"}).
		Validate(got.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.UserID)
	assert.Equal(t, "laptop", claims.DeviceID)
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	path := writeConfig(t, "")
	a := &app{}
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"linked", "--config", path, "-o", "xml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
