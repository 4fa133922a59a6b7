package http

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/validation"
)

// Error codes that do not come from the circulation core.
const (
	CodeValidation = "validation"
	CodeInternal   = "internal"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// ListResponse wraps a list with its length.
type ListResponse struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeValidation})
}

var registerFieldNames sync.Once

// useJSONFieldNames makes gin's validator report fields by their JSON name.
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// respondBindingError reports a request body that failed to decode or
// failed its binding tags. Failed fields are listed by JSON name.
func respondBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: CodeValidation, Details: details})
		return
	}
	respondBadRequest(c, "invalid request body")
}

// respondValidationError reports fields rejected by validation rules.
func respondValidationError(c *gin.Context, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation, Details: verr.Fields})
		return
	}
	respondBadRequest(c, err.Error())
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: string(circulation.KindNotFound)})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	requestLogger(c).Error("internal error", zap.String("context", context), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: CodeInternal})
}

// statusForKind maps circulation error kinds onto HTTP statuses.
func statusForKind(kind circulation.Kind) int {
	switch kind {
	case circulation.KindNotFound:
		return http.StatusNotFound
	case circulation.KindDuplicateLoan,
		circulation.KindOutstandingFine,
		circulation.KindBorrowLimitExceeded,
		circulation.KindNoCopiesAvailable,
		circulation.KindAlreadyCheckedIn:
		return http.StatusConflict
	case circulation.KindInvalidAmount:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondCirculationError renders an Engine or Ledger error. Storage
// failures are logged and reported without their cause.
func respondCirculationError(c *gin.Context, err error, context string) {
	kind := circulation.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		requestLogger(c).Error("circulation failure", zap.String("context", context), zap.Error(err))
		code := string(circulation.KindStorage)
		if kind == "" {
			code = CodeInternal
		}
		c.JSON(status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: string(kind)})
}

// --- Success Response Helpers ---

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalUintQuery reads an optional positive integer query
// parameter. An absent parameter yields nil, true.
func parseOptionalUintQuery(c *gin.Context, paramName string) (*uint, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return nil, false
	}
	v := uint(id)
	return &v, true
}

// parseOptionalBoolQuery reads an optional boolean query parameter.
func parseOptionalBoolQuery(c *gin.Context, paramName string) (*bool, bool) {
	s := c.Query(paramName)
	if s == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return nil, false
	}
	return &b, true
}
