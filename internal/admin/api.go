package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aifusion/gateway/internal/circuitbreaker"
	"github.com/aifusion/gateway/internal/health"
	"github.com/aifusion/gateway/internal/registry"
)

// API serves the registry read contracts. It owns no state of its own:
// every payload is composed from registry, monitor and breaker snapshots
// taken at request time.
type API struct {
	logger    *slog.Logger
	registry  *registry.Registry
	monitor   *health.Monitor
	breakers  *circuitbreaker.Registry
	version   string
	startTime time.Time
}

func New(
	logger *slog.Logger,
	reg *registry.Registry,
	monitor *health.Monitor,
	breakers *circuitbreaker.Registry,
	version string,
) *API {
	return &API{
		logger:    logger,
		registry:  reg,
		monitor:   monitor,
		breakers:  breakers,
		version:   version,
		startTime: time.Now(),
	}
}

// Register mounts the admin endpoints on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/v2/services/registry", a.handleRegistry)
	mux.HandleFunc("POST /api/v2/services/{name}/health-check", a.handleForceCheck)
	mux.HandleFunc("GET /api/v1/info", a.handleInfo)
}

type healthServiceStatus struct {
	State               health.State `json:"state"`
	Host                string       `json:"host"`
	Port                int          `json:"port"`
	RPCPort             int          `json:"rpc_port,omitempty"`
	Required            bool         `json:"required"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastChecked         time.Time    `json:"last_checked,omitzero"`
}

type healthResponse struct {
	Status    string                         `json:"status"`
	Service   string                         `json:"service"`
	Version   string                         `json:"version"`
	Uptime    string                         `json:"uptime"`
	Timestamp time.Time                      `json:"timestamp"`
	Services  map[string]healthServiceStatus `json:"services"`
}

// handleHealth is the aggregate readiness probe: ok iff every required
// service is healthy or degraded. Optional services are reported but do
// not affect the verdict.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	records := a.monitor.Snapshots()

	services := make(map[string]healthServiceStatus, len(records))
	for _, d := range a.registry.All() {
		rec := records[d.Name]
		services[d.Name] = healthServiceStatus{
			State:               rec.State,
			Host:                d.Host,
			Port:                d.Port,
			RPCPort:             d.RPCPort,
			Required:            d.Required,
			ConsecutiveFailures: rec.ConsecutiveFailures,
			LastChecked:         rec.LastChecked,
		}
	}

	response := healthResponse{
		Status:    "ok",
		Service:   "api-gateway",
		Version:   a.version,
		Uptime:    time.Since(a.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Services:  services,
	}

	status := http.StatusOK
	if !a.monitor.Ready() {
		response.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	a.writeJSON(w, status, response)
}

type registryEntry struct {
	Name        string                  `json:"name"`
	Host        string                  `json:"host"`
	Port        int                     `json:"port"`
	RPCPort     int                     `json:"rpc_port,omitempty"`
	Protocol    registry.Protocol       `json:"protocol"`
	Required    bool                    `json:"required"`
	Description string                  `json:"description"`
	Health      health.Record           `json:"health"`
	Circuit     circuitbreaker.Snapshot `json:"circuit"`
}

type registryResponse struct {
	TotalServices     int                      `json:"total_services"`
	HealthyServices   int                      `json:"healthy_services"`
	UnhealthyServices int                      `json:"unhealthy_services"`
	Services          map[string]registryEntry `json:"services"`
}

// handleRegistry composes the descriptor catalog with the health and
// circuit snapshots into one registry view.
func (a *API) handleRegistry(w http.ResponseWriter, r *http.Request) {
	records := a.monitor.Snapshots()
	circuits := a.breakers.Snapshots()

	response := registryResponse{
		Services: make(map[string]registryEntry),
	}

	for _, d := range a.registry.All() {
		rec := records[d.Name]

		response.TotalServices++
		switch rec.State {
		case health.StateHealthy:
			response.HealthyServices++
		case health.StateUnhealthy:
			response.UnhealthyServices++
		}

		response.Services[d.Name] = registryEntry{
			Name:        d.Name,
			Host:        d.Host,
			Port:        d.Port,
			RPCPort:     d.RPCPort,
			Protocol:    d.Protocol,
			Required:    d.Required,
			Description: serviceDescription(d.Name),
			Health:      rec,
			Circuit:     circuits[d.Name],
		}
	}

	a.writeJSON(w, http.StatusOK, response)
}

type forceCheckResponse struct {
	Service string        `json:"service"`
	Health  health.Record `json:"health"`
	Message string        `json:"message"`
}

// handleForceCheck runs one immediate active probe for the named service.
func (a *API) handleForceCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rec, err := a.monitor.ForceCheck(r.Context(), name)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownService) {
			a.writeJSON(w, http.StatusNotFound, map[string]string{
				"detail": "service " + name + " not found",
			})
			return
		}

		a.logger.Error("Manual health check failed",
			slog.String("service", name),
			slog.String("error", err.Error()))
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "health check failed",
		})
		return
	}

	a.writeJSON(w, http.StatusOK, forceCheckResponse{
		Service: name,
		Health:  rec,
		Message: "health check completed for " + name,
	})
}

type infoService struct {
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	RPCPort  int               `json:"rpc_port,omitempty"`
	Protocol registry.Protocol `json:"protocol"`
	Required bool              `json:"required"`
	State    health.State      `json:"state"`
}

type infoResponse struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Description string                 `json:"description"`
	Uptime      string                 `json:"uptime"`
	StartTime   time.Time              `json:"start_time"`
	Services    map[string]infoService `json:"services"`
	Routes      []registry.Route       `json:"routes"`
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	records := a.monitor.Snapshots()

	services := make(map[string]infoService)
	for _, d := range a.registry.All() {
		services[d.Name] = infoService{
			Host:     d.Host,
			Port:     d.Port,
			RPCPort:  d.RPCPort,
			Protocol: d.Protocol,
			Required: d.Required,
			State:    records[d.Name].State,
		}
	}

	a.writeJSON(w, http.StatusOK, infoResponse{
		Name:        "AI Fusion Core",
		Version:     a.version,
		Description: "API gateway for the AI Fusion Core platform",
		Uptime:      time.Since(a.startTime).Round(time.Second).String(),
		StartTime:   a.startTime.UTC(),
		Services:    services,
		Routes:      a.registry.Routes(),
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("Failed to encode admin response", slog.String("error", err.Error()))
	}
}
