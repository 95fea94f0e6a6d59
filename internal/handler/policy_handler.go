package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PolicyHandler struct {
	policyService service.PolicyService
}

func NewPolicyHandler(policyService service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

func (h *PolicyHandler) RegisterRoutes(router *gin.RouterGroup) {
	policies := router.Group("/api/policies")
	{
		policies.GET("", middleware.RequirePermission("policies.read"), h.ListPolicies)
		policies.GET("/:id", middleware.RequirePermission("policies.read"), h.GetPolicy)
		policies.POST("", middleware.RequirePermission("policies.write"), h.CreatePolicy)
		policies.PUT("/:id", middleware.RequirePermission("policies.write"), h.UpdatePolicy)
	}

	approvers := router.Group("/api/policies/:actionType/approvers")
	{
		approvers.GET("", middleware.RequirePermission("policies.read"), h.ListApprovers)
		approvers.POST("", middleware.RequirePermission("policies.write"), h.AddApprover)
	}
	router.DELETE("/api/approvers/:id", middleware.RequirePermission("policies.write"), h.RemoveApprover)
}

// CreatePolicy creates an action policy
// @Summary      Create an action policy
// @Tags         policies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePolicyRequest  true  "Policy Payload"
// @Success      201      {object}  response.Response{data=service.PolicyResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/policies [post]
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	var req service.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.policyService.CreatePolicy(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// UpdatePolicy updates an action policy (including activation/deactivation)
func (h *PolicyHandler) UpdatePolicy(c *gin.Context) {
	var req service.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.policyService.UpdatePolicy(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListPolicies returns configured action policies
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	params := pagination.Parse(c)

	policies, total, err := h.policyService.ListPolicies(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, policies, total, params.Page, params.Limit))
}

// GetPolicy returns one action policy
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	result, err := h.policyService.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// AddApprover registers an eligible approver for an action type
func (h *PolicyHandler) AddApprover(c *gin.Context) {
	var req service.AddApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.policyService.AddApprover(c.Request.Context(), c.Param("actionType"), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListApprovers returns the approver registry for an action type
func (h *PolicyHandler) ListApprovers(c *gin.Context) {
	result, err := h.policyService.ListApprovers(c.Request.Context(), c.Param("actionType"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RemoveApprover deactivates an approver configuration
func (h *PolicyHandler) RemoveApprover(c *gin.Context) {
	if err := h.policyService.RemoveApprover(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"removed": true}))
}
