package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librapp/internal/circulation"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
)

// LoansController serves checkout, checkin and loan listing.
type LoansController struct {
	engine *circulation.Engine
}

func NewLoansController(engine *circulation.Engine) *LoansController {
	return &LoansController{engine: engine}
}

type CheckoutRequest struct {
	ISBN     string `json:"isbn" binding:"required"`
	BranchID uint   `json:"branch_id" binding:"required"`
	CardNo   uint   `json:"card_no" binding:"required"`
}

// Checkout handles POST /api/loans
func (lc *LoansController) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	loan, err := lc.engine.Checkout(c.Request.Context(), req.ISBN, req.BranchID, req.CardNo)
	if err != nil {
		respondCirculationError(c, err, "checkout")
		return
	}
	respondCreated(c, loan)
}

// Checkin handles POST /api/loans/:id/checkin
func (lc *LoansController) Checkin(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := lc.engine.Checkin(c.Request.Context(), loanID)
	if err != nil {
		respondCirculationError(c, err, "checkin")
		return
	}
	c.JSON(http.StatusOK, loan)
}

// ListLoans handles GET /api/loans
// Query: card_no, branch_id, active (true|false), overdue (true|false), limit.
func (lc *LoansController) ListLoans(c *gin.Context) {
	cardNo, ok := parseOptionalUintQuery(c, "card_no")
	if !ok {
		return
	}
	branchID, ok := parseOptionalUintQuery(c, "branch_id")
	if !ok {
		return
	}
	active, ok := parseOptionalBoolQuery(c, "active")
	if !ok {
		return
	}
	overdue, ok := parseOptionalBoolQuery(c, "overdue")
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	filter := circulation.LoanFilter{CardNo: cardNo, BranchID: branchID, Active: active}
	if overdue != nil {
		filter.Overdue = *overdue
	}

	loans := make([]circulation.LoanView, 0)
	for loan, err := range lc.engine.ListLoans(c.Request.Context(), filter) {
		if err != nil {
			respondCirculationError(c, err, "list loans")
			return
		}
		loans = append(loans, loan)
		if len(loans) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, ListResponse{Data: loans, Count: len(loans)})
}

func parseLimit(c *gin.Context) (int, bool) {
	s := c.Query("limit")
	if s == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxListLimit {
		respondBadRequest(c, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
		return 0, false
	}
	return n, true
}
