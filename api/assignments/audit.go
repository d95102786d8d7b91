package assignments

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/infra/audit"
)

// AuditLog answers queries over the recorded bus events.
type AuditLog interface {
	Query(q audit.Query) ([]events.Record, error)
}

// WithAudit exposes a on GET /api/admin/audit.
func (h *Handler) WithAudit(a AuditLog) *Handler {
	h.audit = a
	return h
}

// GET /api/admin/audit?start=&end=&event=&key=&format=json|csv
func (h *Handler) auditLog(c *gin.Context) {
	q := audit.Query{Event: c.Query("event"), Key: c.Query("key")}
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := c.Query(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
			return
		}
		*dst = t
	}
	recs, err := h.audit.Query(q)
	if err != nil {
		h.fail(c, err)
		return
	}
	switch c.DefaultQuery("format", "json") {
	case "json":
		if recs == nil {
			recs = []events.Record{}
		}
		c.JSON(http.StatusOK, recs)
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := audit.WriteCSV(c.Writer, recs); err != nil {
			h.log.Errorf("audit csv: %v", err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
	}
}
