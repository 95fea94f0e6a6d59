package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.POST("", middleware.RequirePermission("requests.submit"), h.SubmitRequest)
		requests.GET("", middleware.RequirePermission("requests.read"), h.ListRequests)
		requests.GET("/:id", middleware.RequirePermission("requests.read"), h.GetRequest)
		requests.GET("/:id/history", middleware.RequirePermission("requests.read"), h.GetHistory)
		requests.POST("/:id/decision", middleware.RequirePermission("requests.decide"), h.RecordDecision)
		requests.POST("/:id/delegate", middleware.RequirePermission("requests.decide"), h.Delegate)
		requests.POST("/:id/cancel", middleware.RequirePermission("requests.submit"), h.CancelRequest)
	}
}

// SubmitRequest submits a critical action for approval
// @Summary      Submit an approval request
// @Description  Creates an approval request for a critical action, or approves it immediately when the requester's role is auto-approved
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitRequestDTO  true  "Submit Payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requests [post]
func (h *ApprovalHandler) SubmitRequest(c *gin.Context) {
	var req service.SubmitRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.SubmitRequest(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests returns approval requests, optionally filtered by status and action type
// @Summary      List approval requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status  query  string  false  "Status filter"
// @Param        type    query  string  false  "Action type filter"
// @Success      200  {object}  response.Response
// @Router       /api/requests [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.RequestFilter{
		Status:     c.Query("status"),
		ActionType: c.Query("type"),
		Page:       params.Page,
		Limit:      params.Limit,
	}

	requests, total, err := h.approvalService.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, total, params.Page, params.Limit))
}

// GetRequest returns one approval request with its decision slots
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	result, err := h.approvalService.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetHistory returns the append-only history trail of a request
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	result, err := h.approvalService.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RecordDecision records an approve/reject decision by the authenticated approver
// @Summary      Decide an approval request
// @Description  Records one approver decision; the request becomes terminal when the strategy quorum is reached
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true  "Request ID"
// @Param        payload  body      service.DecisionDTO  true  "Decision Payload"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/decision [post]
func (h *ApprovalHandler) RecordDecision(c *gin.Context) {
	var req service.DecisionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.RecordDecision(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Delegate reassigns the authenticated approver's pending slot to another user
func (h *ApprovalHandler) Delegate(c *gin.Context) {
	var req service.DelegateDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.Delegate(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelRequest cancels a pending request
func (h *ApprovalHandler) CancelRequest(c *gin.Context) {
	var req service.CancelDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — reason is optional
		req.Reason = ""
	}

	result, err := h.approvalService.CancelRequest(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
