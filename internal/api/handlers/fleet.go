package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/balaji-balu/vps-screener/internal/fleet"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

// ReasonMalformedPayload is reported when the body is not decodable JSON of
// the expected shape.
const ReasonMalformedPayload = "MalformedPayload"

const maxBodyBytes = 1 << 20

type Fleet interface {
	Submit(ctx context.Context, req model.IngestRequest) error
	QueryStatus(ctx context.Context) []model.StatusRecord
	FetchTasks(ctx context.Context, nodeID string) ([]model.Task, error)
}

func SubmitMetrics(c *gin.Context, svc Fleet) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error(), "reason": ReasonMalformedPayload})
		return
	}

	if err := svc.Submit(c.Request.Context(), req); err != nil {
		if fleet.IsRejection(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": fleet.Reason(err)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Metrics received successfully"})
}

func GetStatus(c *gin.Context, svc Fleet) {
	c.JSON(http.StatusOK, svc.QueryStatus(c.Request.Context()))
}

func GetTasks(c *gin.Context, svc Fleet) {
	tasks, err := svc.FetchTasks(c.Request.Context(), c.Query("node"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

type Subscriber interface {
	Register(nodeID string) chan model.StatusRecord
	Unregister(nodeID string, ch chan model.StatusRecord)
}

// StreamStatus pushes a server-sent "status" event for every accepted report,
// limited to one node when ?node= is given.
func StreamStatus(c *gin.Context, hub Subscriber) {
	// a stream outlives the server-wide write timeout
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	node := c.Query("node")
	updates := hub.Register(node)
	defer hub.Unregister(node, updates)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case rec, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", rec)
			return true
		}
	})
}
