package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librapp/internal/database/borrowers"
	"github.com/mrlokans/librapp/internal/entities"
	"github.com/mrlokans/librapp/internal/validation"
)

// BorrowerStore is the subset of the borrowers repository used over HTTP.
type BorrowerStore interface {
	Create(ctx context.Context, b *entities.Borrower) error
	Get(ctx context.Context, cardNo uint) (*entities.Borrower, error)
}

// BorrowerAuditor records issued library cards.
type BorrowerAuditor interface {
	LogBorrowerCreated(ctx context.Context, b *entities.Borrower)
}

type BorrowersController struct {
	store   BorrowerStore
	auditor BorrowerAuditor
}

// NewBorrowersController creates the controller. auditor may be nil.
func NewBorrowersController(store BorrowerStore, auditor BorrowerAuditor) *BorrowersController {
	return &BorrowersController{store: store, auditor: auditor}
}

type CreateBorrowerRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	SSN       string `json:"ssn" binding:"required"`
	Address   string `json:"address" binding:"required"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Create handles POST /api/borrowers
func (bc *BorrowersController) Create(c *gin.Context) {
	var req CreateBorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)

	err := validation.Validate(
		validation.Field{Name: "ssn", Value: req.SSN, Rule: validation.RuleSSN},
		validation.Field{Name: "email", Value: req.Email, Rule: validation.RuleEmail, Optional: true},
		validation.Field{Name: "phone", Value: req.Phone, Rule: validation.RulePhone, Optional: true},
	)
	if err != nil {
		respondValidationError(c, err)
		return
	}

	b := &entities.Borrower{
		SSN:       req.SSN,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Address:   strings.TrimSpace(req.Address),
	}
	if req.Phone != "" {
		b.Phone = &req.Phone
	}
	if req.Email != "" {
		b.Email = &req.Email
	}

	if err := bc.store.Create(c.Request.Context(), b); err != nil {
		if errors.Is(err, borrowers.ErrDuplicateSSN) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_ssn"})
			return
		}
		respondInternalError(c, err, "create borrower")
		return
	}

	if bc.auditor != nil {
		bc.auditor.LogBorrowerCreated(c.Request.Context(), b)
	}
	respondCreated(c, b)
}

// Get handles GET /api/borrowers/:card_no
func (bc *BorrowersController) Get(c *gin.Context) {
	cardNo, ok := parseIDParam(c, "card_no")
	if !ok {
		return
	}

	b, err := bc.store.Get(c.Request.Context(), cardNo)
	if err != nil {
		respondInternalError(c, err, "get borrower")
		return
	}
	if b == nil {
		respondNotFound(c, "borrower")
		return
	}
	c.JSON(http.StatusOK, b)
}
