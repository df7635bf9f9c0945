package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Readiness interface {
	Ready() bool
	State() string
}

func Hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello World!")
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func Readyz(c *gin.Context, life Readiness) {
	if !life.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": life.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": life.State()})
}
