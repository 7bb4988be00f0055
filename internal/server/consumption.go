package server

import (
	"net/http"

	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

type updateConsumptionRequest struct {
	Domain    string `json:"domain" binding:"required"`
	DataUsage *int64 `json:"dataUsage" binding:"required,gte=0"`
	Year      int    `json:"year" binding:"required,gte=2000"`
	Month     int    `json:"month" binding:"required,gte=1,lte=12"`
}

func (s *Server) UpdateConsumption(c *gin.Context) {
	var req updateConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	c.Set(logger.KeyTunnelDomain, req.Domain)

	result, err := s.usageSvc.Record(c.Request.Context(), usagedomain.Observation{
		Domain:    req.Domain,
		DataUsage: *req.DataUsage,
		Year:      req.Year,
		Month:     req.Month,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "consumption updated",
		"dataUsage":     result.DataUsage,
		"reportedUnits": result.ReportedUnits,
	})
}
