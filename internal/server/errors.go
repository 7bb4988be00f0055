package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	billingeventdomain "github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	billingdomain "github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	tunneldomain "github.com/OnnaSoft/real-sync/internal/tunnel/domain"
	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type FieldError struct {
	Message string `json:"message"`
}

// ValidationErrors is a field-keyed set of request problems.
type ValidationErrors struct {
	Fields map[string]FieldError
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type validationRule struct {
	err     error
	field   string
	message string
}

var validationRules = []validationRule{
	{subscriptiondomain.ErrInvalidPlan, "planId", "unknown plan"},
	{subscriptiondomain.ErrInvalidUser, "user", "invalid user"},
	{subscriptiondomain.ErrInvalidCancelRequest, "cancelRequestedAt", "cancellation must be requested after activation"},
	{subscriptiondomain.ErrInvalidStatus, "status", "subscription is not active"},
	{subscriptiondomain.ErrCancellationPending, "status", "subscription is already pending cancellation"},
	{usagedomain.ErrInvalidDomain, "domain", "domain is required"},
	{usagedomain.ErrInvalidDataUsage, "dataUsage", "dataUsage must be zero or more"},
	{usagedomain.ErrInvalidYear, "year", "year must be 2000 or later"},
	{usagedomain.ErrInvalidMonth, "month", "month must be between 1 and 12"},
	{userdomain.ErrInvalidEmail, "email", "invalid email"},
	{userdomain.ErrInvalidPassword, "password", "password is too short"},
	{billingdomain.ErrInvalidSignature, "signature", "invalid signature"},
	{billingeventdomain.ErrInvalidPayload, "payload", "invalid event payload"},
	{billingeventdomain.ErrMissingEventID, "id", "event id is required"},
	{billingeventdomain.ErrMissingSubscription, "subscription", "invoice has no subscription"},
	{ErrInvalidRequest, "request", "invalid request"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, message string) error {
	return &ValidationErrors{Fields: map[string]FieldError{field: {Message: message}}}
}

// bindingError turns a ShouldBindJSON failure into field-keyed errors.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]FieldError, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = FieldError{Message: validationMessage(fe)}
		}
		return &ValidationErrors{Fields: fields}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return newValidationError(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type.Kind()))
	}
	return newValidationError("request", "invalid request body")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "must be a valid email"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	default:
		return "invalid value"
	}
}

func mapError(err error) (int, gin.H) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, gin.H{"errors": vErr.Fields}
	}
	for _, rule := range validationRules {
		if errors.Is(err, rule.err) {
			return http.StatusBadRequest, gin.H{"errors": map[string]FieldError{
				rule.field: {Message: rule.message},
			}}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, userdomain.ErrInvalidCredentials),
		errors.Is(err, userdomain.ErrInvalidToken):
		return http.StatusUnauthorized, gin.H{"message": "unauthorized"}
	case errors.Is(err, userdomain.ErrEmailTaken):
		return http.StatusConflict, gin.H{"message": "email already registered"}
	case isNotFoundError(err):
		return http.StatusNotFound, gin.H{"message": notFoundMessage(err)}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, usagedomain.ErrIngestInProgress):
		return http.StatusTooManyRequests, gin.H{"message": "too many requests"}
	case errors.Is(err, billingdomain.ErrProviderFailure):
		return http.StatusBadGateway, gin.H{"message": "billing provider error"}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, billingdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, gin.H{"message": "service unavailable"}
	default:
		return http.StatusInternalServerError, gin.H{"message": "server error"}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var notFoundErrors = []error{
	subscriptiondomain.ErrSubscriptionNotFound,
	tunneldomain.ErrTunnelNotFound,
	userdomain.ErrUserNotFound,
	usagedomain.ErrNoBillableSubscription,
	usagedomain.ErrBillingLinkMissing,
	gorm.ErrRecordNotFound,
}

func isNotFoundError(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func notFoundMessage(err error) string {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) && target != gorm.ErrRecordNotFound {
			return strings.ReplaceAll(target.Error(), "_", " ")
		}
	}
	return "not found"
}

// classifyErrorForLog returns the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, _ := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		return "validation_error", errorCode(err)
	case status == http.StatusUnauthorized:
		return "unauthorized", errorCode(err)
	case status == http.StatusNotFound:
		return "not_found", errorCode(err)
	case status == http.StatusConflict:
		return "conflict", errorCode(err)
	case status == http.StatusTooManyRequests:
		return "rate_limited", errorCode(err)
	case status == http.StatusBadGateway:
		return "provider_error", "billing_provider_failure"
	default:
		return "internal_error", "internal_error"
	}
}

func errorCode(err error) string {
	if asValidationErrors(err) != nil {
		return "invalid_request"
	}
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		msg = msg[:idx]
	}
	return strings.TrimSpace(msg)
}
