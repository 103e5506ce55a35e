package router

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-agent-go/internal/api/handler"
)

// 不需要鉴权的路径
var publicPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// APIKeyAuth 校验 Authorization: Bearer <key>
func APIKeyAuth(keys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithFilter(func(_ context.Context, c *app.RequestContext) bool {
			return publicPaths[string(c.Path())]
		}),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, handler.ErrorResponse{
				Error:   "Unauthorized",
				Message: err.Error(),
			})
		}),
	)
}

// RegisterRoutes 注册 API 路由，apiKeys 非空时启用鉴权
func RegisterRoutes(h *server.Hertz, rh *handler.ResumeHandler, apiKeys []string) {
	if len(apiKeys) > 0 {
		h.Use(APIKeyAuth(apiKeys))
	}

	h.GET("/", rh.Root)
	h.GET("/health", rh.Health)

	h.POST("/upload-resume", rh.UploadResume)
	h.POST("/analyze-resume", rh.AnalyzeResume)
	h.POST("/continue-conversation", rh.ContinueConversation)

	h.GET("/session/:id", rh.GetSession)
	h.DELETE("/session/:id", rh.DeleteSession)
	h.GET("/sessions", rh.ListSessions)
	h.GET("/users", rh.ListUsers)
}
