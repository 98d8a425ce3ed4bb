package server

import (
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jose/handlerchain/internal/components/api"
	"github.com/jose/handlerchain/internal/frameworks/service"
	"github.com/jose/handlerchain/internal/platform/deps"
	httpmw "github.com/jose/handlerchain/internal/platform/http/middleware"
)

// mountOrder returns core services first, in CoreServices order, then any
// other configured service by name.
func mountOrder(services map[string]service.Service) []string {
	order := make([]string, 0, len(services))
	for _, name := range service.CoreServices {
		if _, ok := services[name]; ok {
			order = append(order, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(services)) {
		if !slices.Contains(service.CoreServices, name) {
			order = append(order, name)
		}
	}
	return order
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, name string, svc service.Service) {
	if svc == nil {
		return
	}

	prefix := svc.Prefix()
	if prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}

	s.logger.Debug("service mounted", "service", name, "prefix", "/"+prefix)
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes creates the chi router with every service mounted.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	// RequestID -> request-scoped logger -> access log -> recoverer
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, d.RealIP))
	r.Use(httpmw.AccessLogMiddleware(s.logger, d.RealIP))
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteNotFound(w, "no route for "+r.URL.Path)
	})

	for _, name := range mountOrder(s.services) {
		s.mountService(r, name, s.services[name])
	}

	return r
}
