package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"backtestd/internal/auth"
	"backtestd/internal/backtest"
	"backtestd/internal/config"
)

// RegisterRoutes wires the control-plane endpoints onto r. Grounded on
// the teacher's internal/api/routes layering, collapsed into a single
// file here since this service exposes a handful of endpoints rather
// than the teacher's full strategy/agent surface.
func RegisterRoutes(r gin.IRouter, svc *RunService) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/runs", startRunHandler(svc))
		v1.GET("/runs/:id", getResultHandler(svc))
		v1.POST("/runs/:id/pause", pauseRunHandler(svc))
		v1.POST("/runs/:id/resume", resumeRunHandler(svc))
		v1.POST("/runs/:id/cancel", cancelRunHandler(svc))
		v1.GET("/prices/:coinId", latestPriceHandler(svc))
	}
}

// RegisterAuthRoutes wires the unauthenticated login endpoint that
// exchanges the operator passphrase for a bearer token. Kept separate
// from RegisterRoutes so callers mount it outside AuthMiddleware.
func RegisterAuthRoutes(r gin.IRouter, cfg *config.Config) {
	r.POST("/api/v1/auth/login", loginHandler(cfg))
}

// LoginRequest is the payload accepted by POST /api/v1/auth/login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// loginHandler godoc
// @Summary      Exchange the operator passphrase for a bearer token
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "operator passphrase"
// @Success      200 {object} map[string]string
// @Router       /api/v1/auth/login [post]
func loginHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if cfg.OperatorPasswordHash == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator login is not configured"})
			return
		}
		if err := auth.VerifyPassword(cfg.OperatorPasswordHash, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := auth.GenerateToken("operator", time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// startRunHandler godoc
// @Summary      Start a backtest run
// @Accept       json
// @Produce      json
// @Param        request body StartRunRequest true "run parameters"
// @Success      202 {object} RunStatusResponse
// @Router       /api/v1/runs [post]
func startRunHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		runID, err := svc.StartRun(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, RunStatusResponse{RunID: runID, Status: "started"})
	}
}

// getResultHandler godoc
// @Summary      Fetch a run's status and, once completed, its metrics
// @Produce      json
// @Param        id path string true "run id"
// @Success      200 {object} RunResultResponse
// @Router       /api/v1/runs/{id} [get]
func getResultHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.GetResult(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// pauseRunHandler godoc
// @Summary      Request a live-replay run pause at its next bar boundary
// @Produce      json
// @Param        id path string true "run id"
// @Success      202 {object} RunStatusResponse
// @Router       /api/v1/runs/{id}/pause [post]
func pauseRunHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		if err := svc.PauseRun(runID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, RunStatusResponse{RunID: runID, Status: "pause-requested"})
	}
}

// resumeRunHandler godoc
// @Summary      Resume a paused run from its latest checkpoint
// @Accept       json
// @Produce      json
// @Param        id path string true "run id"
// @Param        request body ResumeRunRequest true "resume parameters"
// @Success      202 {object} RunStatusResponse
// @Router       /api/v1/runs/{id}/resume [post]
func resumeRunHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")

		var req ResumeRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := svc.ResumeRun(c.Request.Context(), runID, req.AlgorithmName, req.Coins, req.CoinFiles); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, RunStatusResponse{RunID: runID, Status: "resumed"})
	}
}

// cancelRunHandler godoc
// @Summary      Cancel an in-flight run without persisting a resumable checkpoint
// @Produce      json
// @Param        id path string true "run id"
// @Success      202 {object} RunStatusResponse
// @Router       /api/v1/runs/{id}/cancel [post]
func cancelRunHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		if err := svc.CancelRun(runID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, RunStatusResponse{RunID: runID, Status: "cancelled"})
	}
}

// latestPriceHandler godoc
// @Summary      Fetch the most recently loaded candle for a coin
// @Produce      json
// @Param        coinId path string true "coin id"
// @Success      200 {object} backtest.Candle
// @Router       /api/v1/prices/{coinId} [get]
func latestPriceHandler(svc *RunService) gin.HandlerFunc {
	return func(c *gin.Context) {
		candle, ok := svc.LatestPrice(c.Param("coinId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cached price for coin"})
			return
		}
		c.JSON(http.StatusOK, candle)
	}
}

// ResumeRunRequest is the payload accepted by POST /api/v1/runs/:id/resume.
type ResumeRunRequest struct {
	AlgorithmName string            `json:"algorithm_name" binding:"required"`
	Coins         []backtest.Coin   `json:"coins" binding:"required"`
	CoinFiles     map[string]string `json:"coin_files" binding:"required"`
}
