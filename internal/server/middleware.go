package server

import (
	"crypto/subtle"
	"reflect"
	"strings"
	"sync"

	obscontext "github.com/OnnaSoft/real-sync/internal/observability/context"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	contextUserIDKey      = "user_id"
	headerConsumptionKey  = "X-Consumption-Key"
	headerStripeSignature = "Stripe-Signature"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
}

// BearerAuth requires a valid user token and stores the user id on the request.
func (s *Server) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.userSvc.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

// ConsumptionKey checks X-Consumption-Key when a key is configured.
func (s *Server) ConsumptionKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.ConsumptionAPIKey
		if expected == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(headerConsumptionKey))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok && id != 0
}
