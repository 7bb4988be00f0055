package server

import (
	"net/http"

	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=8"`
	PlanID   *int64 `json:"planId" binding:"omitempty,gte=1"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type assignPlanRequest struct {
	PlanID int64 `json:"planId" binding:"required,gte=1"`
}

type registerResponse struct {
	*userdomain.AuthResult
	Subscription      *subscriptiondomain.SubscriptionView `json:"subscription,omitempty"`
	SubscriptionError gin.H                                `json:"subscriptionError,omitempty"`
}

// Register creates the user and, when planId is given, assigns the plan.
// The account is committed before the plan is assigned, so a failed
// assignment still answers 201 with the token and a subscriptionError; the
// client retries through /users/assign-plan.
func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	ctx := c.Request.Context()
	result, err := s.userSvc.Register(ctx, userdomain.RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := registerResponse{AuthResult: result}
	if req.PlanID != nil {
		userID, err := snowflake.ParseString(result.User.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		view, err := s.subscriptionSvc.AssignPlan(ctx, userID, *req.PlanID)
		if err != nil {
			s.log.Warn("plan assignment at registration failed",
				zap.String("user_id", result.User.ID),
				zap.Int64("plan_id", *req.PlanID),
				zap.Error(err),
			)
			_, resp.SubscriptionError = mapError(err)
		} else {
			resp.Subscription = view
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.userSvc.Login(c.Request.Context(), userdomain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) AssignPlan(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req assignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	view, err := s.subscriptionSvc.AssignPlan(c.Request.Context(), userID, req.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.subscriptionSvc.RequestCancellation(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) GetSubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.subscriptionSvc.Current(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
