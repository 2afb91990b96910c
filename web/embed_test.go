package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html": {Data: []byte("<html>shell</html>")},
		"app.js":     {Data: []byte("console.log('app')")},
	}
}

func TestSPAHandlerServesFiles(t *testing.T) {
	h := newSPAHandler(testFS())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestSPAHandlerFallsBackToIndex(t *testing.T) {
	h := newSPAHandler(testFS())

	for _, path := range []string{"/", "/some/client/route"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "shell", path)
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"), path)
	}
}

func TestSPAHandlerRejectsWrites(t *testing.T) {
	h := newSPAHandler(testFS())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEmbeddedClientHasShell(t *testing.T) {
	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="repo-form"`)
}
