package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plans":   s.catalog.ListPlans(),
		"version": s.catalog.Version(),
	})
}
