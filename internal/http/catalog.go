package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librapp/internal/database/catalog"
	"github.com/mrlokans/librapp/internal/entities"
	"github.com/mrlokans/librapp/internal/validation"
)

// CatalogStore is the subset of the catalog repository used over HTTP.
type CatalogStore interface {
	Search(ctx context.Context, query string, branchID uint, limit int) ([]catalog.SearchResult, error)
	ListBranches(ctx context.Context) ([]entities.LibraryBranch, error)
	SetCopies(ctx context.Context, isbn string, branchID uint, available int) (*entities.BookCopy, error)
}

// InventoryAuditor records inventory changes.
type InventoryAuditor interface {
	LogInventory(ctx context.Context, c *entities.BookCopy)
}

type CatalogController struct {
	store   CatalogStore
	auditor InventoryAuditor
}

// NewCatalogController creates the controller. auditor may be nil.
func NewCatalogController(store CatalogStore, auditor InventoryAuditor) *CatalogController {
	return &CatalogController{store: store, auditor: auditor}
}

// Search handles GET /api/search?q=&branch_id=
func (cc *CatalogController) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if err := validation.Validate(validation.Field{Name: "q", Value: query, Rule: validation.RuleSearchQuery}); err != nil {
		respondValidationError(c, err)
		return
	}
	branchID, ok := parseOptionalUintQuery(c, "branch_id")
	if !ok {
		return
	}
	var branch uint
	if branchID != nil {
		branch = *branchID
	}

	results, err := cc.store.Search(c.Request.Context(), query, branch, catalog.DefaultSearchLimit)
	if err != nil {
		respondInternalError(c, err, "search catalog")
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: results, Count: len(results)})
}

// ListBranches handles GET /api/branches
func (cc *CatalogController) ListBranches(c *gin.Context) {
	branches, err := cc.store.ListBranches(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list branches")
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: branches, Count: len(branches)})
}

type SetCopiesRequest struct {
	ISBN            string `json:"isbn" binding:"required"`
	BranchID        uint   `json:"branch_id" binding:"required"`
	CopiesAvailable *int   `json:"copies_available" binding:"required,min=0"`
}

// SetCopies handles PUT /api/copies
func (cc *CatalogController) SetCopies(c *gin.Context) {
	var req SetCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	if err := validation.Validate(validation.Field{Name: "isbn", Value: req.ISBN, Rule: validation.RuleISBN}); err != nil {
		respondValidationError(c, err)
		return
	}

	bookCopy, err := cc.store.SetCopies(c.Request.Context(), req.ISBN, req.BranchID, *req.CopiesAvailable)
	switch {
	case errors.Is(err, catalog.ErrUnknownBook):
		respondNotFound(c, "book")
		return
	case errors.Is(err, catalog.ErrUnknownBranch):
		respondNotFound(c, "branch")
		return
	case err != nil:
		respondInternalError(c, err, "set copies")
		return
	}

	if cc.auditor != nil {
		cc.auditor.LogInventory(c.Request.Context(), bookCopy)
	}
	c.JSON(http.StatusOK, bookCopy)
}
