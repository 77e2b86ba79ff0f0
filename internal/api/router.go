// api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"korob/internal/engine"
	"korob/internal/meta"
)

// NewRouter собирает все маршруты поверх движка записей и стора схем.
func NewRouter(svc *engine.Service, store meta.SchemaStore, reader *meta.Reader,
	routing *engine.Routing, log *zap.Logger) *gin.Engine {

	r := gin.Default()
	admin := NewAdmin(store, log)

	r.GET("/health", HealthHandler(routing))
	r.GET("/api/meta", MetaListHandler(store))
	r.GET("/api/meta/:entity", MetaEntityHandler(reader))
	r.GET("/api/lookup/:entity", LookupHandler(svc, reader))

	adminGroup := r.Group("/api/admin")
	{
		adminGroup.POST("/entities", admin.CreateEntity)
		adminGroup.GET("/entities", admin.ListEntities)
		adminGroup.GET("/entities/:entity", admin.GetEntity)
		adminGroup.PUT("/entities/:entity", admin.UpdateEntity)
		adminGroup.DELETE("/entities/:entity", admin.DeleteEntity)
		adminGroup.POST("/entities/:entity/fields", admin.CreateField)
		adminGroup.PUT("/fields/:id", admin.UpdateField)
		adminGroup.DELETE("/fields/:id", admin.DeleteField)
	}

	apiGroup := r.Group("/api")
	{
		// служебный маршрут — до CRUD, чтобы не конфликтовал с :id
		apiGroup.GET("/:entity/count", CountHandler(svc))

		apiGroup.POST("/:entity", CreateHandler(svc))
		apiGroup.GET("/:entity", ListHandler(svc))
		apiGroup.GET("/:entity/:id", GetOneHandler(svc))
		apiGroup.PATCH("/:entity/:id", UpdateHandler(svc))
		apiGroup.DELETE("/:entity/:id", DeleteHandler(svc))
	}

	return r
}

// HealthHandler опрашивает каждый бэкенд; любой отказ -> 503.
func HealthHandler(routing *engine.Routing) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		backends := gin.H{}
		for _, a := range routing.Backends() {
			if err := a.HealthCheck(c.Request.Context()); err != nil {
				backends[a.BackendName()] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				backends[a.BackendName()] = "ok"
			}
		}
		c.JSON(status, gin.H{"backends": backends})
	}
}

func RunServer(addr string, r *gin.Engine) error {
	return r.Run(addr)
}
