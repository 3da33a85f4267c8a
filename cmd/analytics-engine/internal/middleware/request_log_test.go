package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sidd-007/experiment-analytics/pkg/rbac"
)

func accessLog(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestRequestLogger_RecordsPrincipal(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	h := RequestLogger(zerolog.New(&buf))(f.handler(rbac.ActionRead))

	viewer, err := f.tokens.GenerateUserToken("u-1", "v@example.com", "org-1", "viewer", time.Hour)
	require.NoError(t, err)

	rec := serve(h, "Bearer "+viewer)
	require.Equal(t, http.StatusOK, rec.Code)

	entry := accessLog(t, &buf)
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "u-1", entry["principal"])
	assert.Equal(t, http.MethodGet, entry["method"])
	assert.Equal(t, "/api/v1/experiments", entry["path"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
}

func TestRequestLogger_AnonymousRequest(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	h := RequestLogger(zerolog.New(&buf))(f.handler(rbac.ActionRead))

	rec := serve(h, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	entry := accessLog(t, &buf)
	assert.Equal(t, "", entry["principal"])
	assert.EqualValues(t, http.StatusUnauthorized, entry["status"])
	assert.Equal(t, "info", entry["level"])
}
