package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librapp/internal/circulation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseIDParam_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "123"}}

	id, ok := parseIDParam(c, "id")

	assert.True(t, ok)
	assert.Equal(t, uint(123), id)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseIDParam_Invalid(t *testing.T) {
	for _, value := range []string{"abc", "-1", "0", ""} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: value}}

		id, ok := parseIDParam(c, "id")

		assert.False(t, ok, value)
		assert.Equal(t, uint(0), id)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid id")
	}
}

func TestParseOptionalUintQuery(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/?card_no=456", nil)

	v, ok := parseOptionalUintQuery(c, "card_no")
	assert.True(t, ok)
	assert.Equal(t, uint(456), *v)

	v, ok = parseOptionalUintQuery(c, "branch_id")
	assert.True(t, ok)
	assert.Nil(t, v)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/?card_no=x", nil)
	v, ok = parseOptionalUintQuery(c, "card_no")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind   circulation.Kind
		status int
	}{
		{circulation.KindNotFound, http.StatusNotFound},
		{circulation.KindDuplicateLoan, http.StatusConflict},
		{circulation.KindOutstandingFine, http.StatusConflict},
		{circulation.KindBorrowLimitExceeded, http.StatusConflict},
		{circulation.KindNoCopiesAvailable, http.StatusConflict},
		{circulation.KindAlreadyCheckedIn, http.StatusConflict},
		{circulation.KindInvalidAmount, http.StatusBadRequest},
		{circulation.KindStorage, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.status, statusForKind(tc.kind), string(tc.kind))
	}
}

func TestRespondCirculationError_HidesStorageCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := fmt.Errorf("checkout: %w", &circulation.Error{
		Kind: circulation.KindStorage,
		Msg:  "load copy",
		Err:  errors.New("disk I/O error at /var/lib/librapp.db"),
	})
	respondCirculationError(c, err, "checkout")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"storage_failure"`)
	assert.NotContains(t, w.Body.String(), "disk I/O")
}

func TestRespondCirculationError_Unknown(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondCirculationError(c, errors.New("boom"), "list")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"internal"`)
}

func TestRespondBindingError_JSONFieldNames(t *testing.T) {
	useJSONFieldNames()

	var req struct {
		Title  string `json:"title" binding:"required"`
		Copies int    `json:"total_copies" binding:"required,min=1"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader(`{"total_copies": 0}`))
	c.Request.Header.Set("Content-Type", "application/json")

	err := c.ShouldBindJSON(&req)
	require.Error(t, err)
	respondBindingError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"title": "required", "total_copies": "required"}, body.Details)
}
