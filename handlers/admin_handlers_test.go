package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerIngestionRejectsUnknownSubject(t *testing.T) {
	banks := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(banks, "subjects", "MATH101"), 0o755))
	invalidated := false
	// The database is never reached for codes outside the bank checkout
	h := TriggerIngestion(nil, banks, func(context.Context) error {
		invalidated = true
		return nil
	})

	for _, code := range []string{"PHYS101", "..", "../MATH101", "MATH101/.."} {
		gin.SetMode(gin.TestMode)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingest/x", nil)
		c.Params = gin.Params{{Key: "subject_code", Value: code}}
		h(c)
		assert.Equal(t, http.StatusNotFound, w.Code, code)
	}
	assert.False(t, invalidated)
}

func TestTriggerIngestionMissingBanks(t *testing.T) {
	h := TriggerIngestion(nil, filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil })

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingest/MATH101", nil)
	c.Params = gin.Params{{Key: "subject_code", Value: "MATH101"}}
	h(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
