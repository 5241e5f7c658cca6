package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/rentbell/internal/dispatch"
	"github.com/zulandar/rentbell/internal/session"
	"github.com/zulandar/rentbell/internal/transport"
	"go.uber.org/zap"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers, secret string) {
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	wa := router.Group("/api/whatsapp", requireTenant(secret))
	wa.POST("/init", h.initSession)
	wa.GET("/status", h.status)
	wa.POST("/send-reminders", h.sendReminders)
	wa.POST("/disconnect", h.disconnect)
}

type handlers struct {
	sessions Sessions
	sender   Sender
	log      *zap.Logger
}

// statusResponse is the polling payload. qrCode is null when no pairing
// code is pending.
type statusResponse struct {
	State          string  `json:"state"`
	IsReady        bool    `json:"isReady"`
	IsInitializing bool    `json:"isInitializing"`
	HasQRCode      bool    `json:"hasQRCode"`
	QRCode         *string `json:"qrCode"`
	LastError      string  `json:"lastError,omitempty"`
	Stage          string  `json:"stage"`
	SyncPercent    int     `json:"syncPercent"`
}

type sendRequest struct {
	Residents []dispatch.Target `json:"residents"`
}

type disconnectRequest struct {
	Forget bool `json:"forget"`
}

func (h *handlers) initSession(c *gin.Context) {
	tenant := tenantOf(c)
	reset, _ := strconv.ParseBool(c.Query("reset"))

	var (
		res session.ConnectResult
		err error
	)
	if reset {
		res, err = h.sessions.Reset(c.Request.Context(), tenant)
	} else {
		res, err = h.sessions.EnsureConnected(c.Request.Context(), tenant)
	}
	if err != nil {
		h.log.Error("api: init", zap.String("tenant", tenant), zap.Bool("reset", reset), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"message": "Failed to initialize WhatsApp", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(res.Status), "message": res.Message})
}

func (h *handlers) status(c *gin.Context) {
	st := h.sessions.Status(tenantOf(c))
	resp := statusResponse{
		State:          st.State.String(),
		IsReady:        st.IsReady,
		IsInitializing: st.IsInitializing,
		HasQRCode:      st.HasPairingCode,
		LastError:      st.LastError,
		Stage:          st.Stage,
		SyncPercent:    st.SyncPercent,
	}
	if st.HasPairingCode {
		code := st.PairingCode
		resp.QRCode = &code
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) sendReminders(c *gin.Context) {
	tenant := tenantOf(c)
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body", "error": err.Error()})
		return
	}

	// A started batch finishes even if the client goes away; pacing bounds it.
	out, err := h.sender.SendAll(context.WithoutCancel(c.Request.Context()), tenant, req.Residents)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, out)
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, dispatch.ErrNoTargets):
		c.JSON(http.StatusBadRequest, out)
	default:
		h.log.Error("api: send reminders", zap.String("tenant", tenant), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send reminders", "error": err.Error()})
	}
}

func (h *handlers) disconnect(c *gin.Context) {
	tenant := tenantOf(c)
	forget, _ := strconv.ParseBool(c.Query("forget"))
	if !forget && c.Request.ContentLength != 0 {
		var req disconnectRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			forget = req.Forget
		}
	}

	if err := h.sessions.Disconnect(c.Request.Context(), tenant, forget); err != nil {
		h.log.Error("api: disconnect", zap.String("tenant", tenant), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"message": "Failed to disconnect", "error": err.Error()})
		return
	}
	msg := "WhatsApp disconnected"
	if forget {
		msg = "WhatsApp disconnected and device forgotten"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, transport.ErrInvalidTenant) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
