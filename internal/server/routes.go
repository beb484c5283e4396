package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/efyoos/bellhop/internal/dispatch"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
	"github.com/efyoos/bellhop/internal/task"
)

const triggerTokenHeader = "X-Trigger-Token"

func registerRoutes(router *gin.Engine, opts *Opts) {
	router.GET("/healthz", handleHealth(opts))

	router.POST("/requests", handleCreateRequest(opts))
	router.GET("/requests/:id", handleGetRequest(opts))

	router.GET("/webhook/whatsapp", handleWebhookVerify(opts))
	router.POST("/webhook/whatsapp", handleWebhook(opts))

	router.POST("/heartbeat", handleHeartbeat(opts))

	router.GET("/alerts", handleListAlerts(opts))
	router.POST("/alerts/:id/ack", handleCloseAlert(opts, opts.Store.AcknowledgeAlert))
	router.POST("/alerts/:id/resolve", handleCloseAlert(opts, opts.Store.ResolveAlert))
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func handleHealth(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := opts.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type createRequest struct {
	HotelID     string `json:"hotel_id"`
	RoomNumber  string `json:"room_number"`
	RequestText string `json:"request_text"`
	GuestName   string `json:"guest_name"`
	Urgency     string `json:"urgency"`
	Language    string `json:"language"`
	Category    string `json:"category"`
	ShortCode   string `json:"short_code"`
}

func handleCreateRequest(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		res, err := task.Create(c.Request.Context(), opts.DB, task.CreateOpts{
			HotelID:     req.HotelID,
			RoomNumber:  req.RoomNumber,
			RequestText: req.RequestText,
			GuestName:   req.GuestName,
			Urgency:     req.Urgency,
			Language:    req.Language,
			Category:    req.Category,
			ShortCode:   req.ShortCode,
			MaxRetries:  opts.MaxRetries,
		})
		var verr *task.ValidationError
		switch {
		case errors.As(err, &verr):
			fail(c, http.StatusBadRequest, verr.Message)
			return
		case err != nil:
			opts.Logger.Error("create request", "hotel_id", req.HotelID, "error", err)
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}

		t := res.Task
		if res.IsDuplicate {
			opts.Logger.Info("duplicate request", "task_id", t.ID, "short_code", t.ShortCode)
			c.JSON(http.StatusOK, gin.H{
				"success":      true,
				"request_id":   t.ID,
				"short_code":   t.ShortCode,
				"status":       t.Status,
				"message":      "Request already exists",
				"is_duplicate": true,
			})
			return
		}
		opts.Logger.Info("request created", "task_id", t.ID, "hotel_id", t.HotelID, "short_code", t.ShortCode)
		c.JSON(http.StatusOK, gin.H{
			"success":                   true,
			"request_id":                t.ID,
			"short_code":                t.ShortCode,
			"status":                    t.Status,
			"message":                   "Request received and queued for processing",
			"estimated_processing_time": "60 seconds",
		})
	}
}

func handleGetRequest(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid request id")
			return
		}
		t, err := task.Get(c.Request.Context(), opts.DB, uint(id))
		if errors.Is(err, task.ErrNotFound) {
			fail(c, http.StatusNotFound, "request not found")
			return
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, newTaskView(t))
	}
}

func handleWebhookVerify(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("hub.mode") == "subscribe" && opts.VerifyToken != "" &&
			c.Query("hub.verify_token") == opts.VerifyToken {
			opts.Logger.Info("whatsapp webhook verified")
			c.String(http.StatusOK, c.Query("hub.challenge"))
			return
		}
		c.String(http.StatusForbidden, "Forbidden")
	}
}

func handleWebhook(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.String(http.StatusBadRequest, "Bad request")
			return
		}
		replies, err := notify.ParseWebhook(body)
		if err != nil {
			opts.Logger.Warn("undecodable webhook", "error", err)
			c.String(http.StatusBadRequest, "Bad request")
			return
		}
		if len(replies) == 0 {
			c.String(http.StatusOK, "No message")
			return
		}
		for _, r := range replies {
			if _, err := opts.Replies.Handle(c.Request.Context(), r); err != nil {
				opts.Logger.Error("handle staff reply", "from", r.From, "token", r.Token, "error", err)
				c.String(http.StatusInternalServerError, "Error")
				return
			}
		}
		c.String(http.StatusOK, "OK")
	}
}

type heartbeatResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	*dispatch.Report
}

func handleHeartbeat(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if want := opts.Server.TriggerToken; want != "" {
			got := c.GetHeader(triggerTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				fail(c, http.StatusUnauthorized, "invalid trigger token")
				return
			}
		}
		report, err := opts.Engine.Heartbeat(c.Request.Context())
		if err != nil {
			opts.Logger.Error("heartbeat failed", "error", err)
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		resp := heartbeatResponse{Success: true, Report: report}
		if report.Processed == 0 {
			resp.Message = "No pending requests"
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleListAlerts(opts *Opts) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch status {
		case "", models.AlertActive, models.AlertAcknowledged, models.AlertResolved:
		default:
			fail(c, http.StatusBadRequest, "unknown alert status "+strconv.Quote(status))
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		alerts, err := opts.Store.ListAlerts(c.Request.Context(), status, limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]alertView, 0, len(alerts))
		for i := range alerts {
			views = append(views, newAlertView(&alerts[i]))
		}
		c.JSON(http.StatusOK, gin.H{"alerts": views})
	}
}

type closeAlertFunc func(ctx context.Context, id uint) (*models.OperationalAlert, error)

func handleCloseAlert(opts *Opts, closeAlert closeAlertFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid alert id")
			return
		}
		a, err := closeAlert(c.Request.Context(), uint(id))
		switch {
		case errors.Is(err, store.ErrAlertNotFound):
			fail(c, http.StatusNotFound, "alert not found")
		case errors.Is(err, store.ErrConflict):
			fail(c, http.StatusConflict, err.Error())
		case err != nil:
			fail(c, http.StatusInternalServerError, err.Error())
		default:
			c.JSON(http.StatusOK, gin.H{"success": true, "alert": newAlertView(a)})
		}
	}
}
