package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	auditRepo "github.com/mrlokans/librapp/internal/database/audit"
	"github.com/mrlokans/librapp/internal/entities"
)

// AuditReader lists persisted audit events.
type AuditReader interface {
	GetEvents(ctx context.Context, f auditRepo.Filter) ([]entities.AuditEvent, int64, error)
}

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&user_id=&entity_type=&entity_id=&page=&limit=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	userID, ok := parseOptionalUintQuery(c, "user_id")
	if !ok {
		return
	}
	entityID, ok := parseOptionalUintQuery(c, "entity_id")
	if !ok {
		return
	}

	filter := auditRepo.Filter{
		EventType:  entities.AuditEventType(c.Query("type")),
		EntityType: c.Query("entity_type"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if userID != nil {
		filter.UserID = *userID
	}
	if entityID != nil {
		filter.EntityID = *entityID
	}

	events, total, err := ac.reader.GetEvents(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"events":       events,
		"page":         page,
		"limit":        limit,
		"total_pages":  totalPages,
		"total_events": total,
	})
}
