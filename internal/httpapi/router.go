// Package httpapi is the HTTP transport surface: a single GET/POST
// endpoint carrying KVP/XML WPS requests, plus the chunked
// result-streaming endpoint and a health check, served through gin.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/dispatcher"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/registry"
)

// NewRouter builds the gin.Engine serving cfg.MainEndpointName (GET
// KVP / POST XML) and cfg.ResultEndpointName (chunked GET), plus a
// health check. The service carries no authentication, so CORS is
// permissive by default.
func NewRouter(d *dispatcher.Dispatcher, reg *registry.Registry, cfg config.Config, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", HealthCheck)

	h := &Handler{dispatcher: d, registry: reg, cfg: cfg, log: log.With("component", "httpapi")}

	main := normalizeEndpoint(cfg.MainEndpointName)
	router.GET(main, h.ServeMain)
	router.POST(main, h.ServeMain)

	result := normalizeResultEndpoint(cfg.ResultEndpointName)
	router.GET(result, h.ServeResult)

	return router
}

// normalizeEndpoint replaces an empty configured path with "/"; gin
// requires a non-empty route pattern.
func normalizeEndpoint(name string) string {
	if name == "" {
		return "/"
	}
	return name
}

// normalizeResultEndpoint falls back to the default chunked-result
// route shape when the configured value is empty; a non-empty value is
// used as given, without checking that it is in gin-param form.
func normalizeResultEndpoint(name string) string {
	if name == "" {
		return "/result/:job_id/:result_name"
	}
	return name
}
