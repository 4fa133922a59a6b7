package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mrlokans/librapp/internal/circulation"
)

// FinesController serves fine listing and payments.
type FinesController struct {
	engine *circulation.Engine
	ledger *circulation.Ledger
}

func NewFinesController(engine *circulation.Engine) *FinesController {
	return &FinesController{engine: engine, ledger: engine.Ledger()}
}

// ListFines handles GET /api/fines
// Query: card_no, branch_id, status (unpaid|paid|both, default both), limit.
func (fc *FinesController) ListFines(c *gin.Context) {
	cardNo, ok := parseOptionalUintQuery(c, "card_no")
	if !ok {
		return
	}
	branchID, ok := parseOptionalUintQuery(c, "branch_id")
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	status := circulation.FineStatusFilter(c.DefaultQuery("status", string(circulation.FineFilterBoth)))
	switch status {
	case circulation.FineFilterUnpaid, circulation.FineFilterPaid, circulation.FineFilterBoth:
	default:
		respondBadRequest(c, "status must be one of unpaid, paid, both")
		return
	}

	filter := circulation.FineFilter{CardNo: cardNo, BranchID: branchID, Status: status}
	loans := make([]circulation.LoanView, 0)
	for loan, err := range fc.engine.ListFines(c.Request.Context(), filter) {
		if err != nil {
			respondCirculationError(c, err, "list fines")
			return
		}
		loans = append(loans, loan)
		if len(loans) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, ListResponse{Data: loans, Count: len(loans)})
}

type PaymentRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

// Pay handles POST /api/fines/:id/payments
// The amount may be sent as a JSON number or string, e.g. "7.00".
func (fc *FinesController) Pay(c *gin.Context) {
	fineID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	result, err := fc.ledger.Pay(c.Request.Context(), fineID, *req.Amount)
	if err != nil {
		respondCirculationError(c, err, "pay fine")
		return
	}
	c.JSON(http.StatusOK, result)
}
