package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testContext(t *testing.T, method string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, "/", nil)
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleSuccess(t *testing.T) {
	c, rec := testContext(t, http.MethodGet)
	Handle(c, gin.H{"ok": true}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestSuccessCreatedOnPost(t *testing.T) {
	c, rec := testContext(t, http.MethodPost)
	Success(c, gin.H{"ok": true})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleRecordNotFound(t *testing.T) {
	c, rec := testContext(t, http.MethodGet)
	Handle(c, nil, gorm.ErrRecordNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeNotFound, body.Error.Code)
}

func TestHandleRegisteredError(t *testing.T) {
	sentinel := errors.New("book is closed for maintenance")
	RegisterError(sentinel, http.StatusConflict, ErrCodeConflict)

	c, rec := testContext(t, http.MethodPost)
	HandleError(c, sentinel)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeConflict, body.Error.Code)
	assert.Equal(t, sentinel.Error(), body.Error.Message)
}

func TestHandleWrappedRegisteredError(t *testing.T) {
	sentinel := errors.New("quota exhausted")
	RegisterError(sentinel, http.StatusForbidden, ErrCodeForbidden)

	c, rec := testContext(t, http.MethodPost)
	HandleError(c, errors.Join(errors.New("placing order"), sentinel))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleUnregisteredError(t *testing.T) {
	c, rec := testContext(t, http.MethodGet)
	HandleError(c, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCodeInternalError, body.Error.Code)
	// internal detail never leaks into the message
	assert.NotContains(t, body.Error.Message, "disk on fire")
}
