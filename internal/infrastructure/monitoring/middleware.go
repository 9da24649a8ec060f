package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route templates keep label cardinality bounded (/extensions/:id)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a collaborator round trip
type Timer struct {
	start   time.Time
	metrics *Metrics
	op      string
}

// NewTimer starts timing a registry operation
func NewTimer(metrics *Metrics, op string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, op: op}
}

// Stop records the elapsed time under the given outcome
func (t *Timer) Stop(outcome string) {
	t.metrics.ObserveRegistryFetch(t.op, outcome, time.Since(t.start))
}
