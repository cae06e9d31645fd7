package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBearerToken_AcceptsHeader(t *testing.T) {
	t.Parallel()
	h := BearerToken("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer s3cret")

	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

func TestBearerToken_AcceptsQueryParameter(t *testing.T) {
	t.Parallel()
	h := BearerToken("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/nt?token=s3cret", nil)

	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

func TestBearerToken_WhenMissing_Challenges(t *testing.T) {
	t.Parallel()
	h := BearerToken("s3cret")(okHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/nt", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="elastic"`)
}

func TestBearerToken_WhenWrong_RejectsAsInvalid(t *testing.T) {
	t.Parallel()
	h := BearerToken("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := serve(h, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestBearerToken_WhenMalformedHeader_Challenges(t *testing.T) {
	t.Parallel()
	h := BearerToken("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/mcp?token=s3cret", nil)
	req.Header.Set("Authorization", "Basic s3cret")

	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}

func TestBearerToken_EmptyTokenDisablesCheck(t *testing.T) {
	t.Parallel()
	h := BearerToken("")(okHandler())

	assert.Equal(t, http.StatusNoContent, serve(h, httptest.NewRequest(http.MethodGet, "/nt", nil)).Code)
}

func TestSecurityHeaders_SetsHeaders(t *testing.T) {
	t.Parallel()

	rec := serve(SecurityHeaders(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}
