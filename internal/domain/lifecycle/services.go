package lifecycle

import (
	"github.com/webOS-ports/sam/internal/domain/catalog"
	"github.com/webOS-ports/sam/internal/infrastructure/config"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
	"github.com/webOS-ports/sam/internal/infrastructure/monitoring"
)

// EventSink receives observable lifecycle events. The core calls it
// synchronously on the mutating goroutine; the RPC layer is its only
// registrant. Publication is edge-triggered on registry add/remove and on
// every status change.
type EventSink interface {
	// PostRunning publishes the full running list after an add or remove.
	PostRunning(apps []map[string]any)
	// PostLifeStatus publishes one instance's status change.
	PostLifeStatus(app *RunningApp)
	// PostLifeEvent publishes one instance's life event.
	PostLifeEvent(app *RunningApp)
}

// NopSink discards all events. Used when no observer layer is attached.
type NopSink struct{}

func (NopSink) PostRunning(apps []map[string]any) {}
func (NopSink) PostLifeStatus(app *RunningApp)    {}
func (NopSink) PostLifeEvent(app *RunningApp)     {}

// Services is the dependency context threaded through the lifecycle core.
// There is no process-wide state; tests construct fresh services.
type Services struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Handlers *HandlerMux
	Sink     EventSink
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
}

// NewServices fills in safe defaults for optional collaborators.
func NewServices(cfg *config.Config, cat *catalog.Catalog, handlers *HandlerMux, sink EventSink, logger *logging.Logger, metrics *monitoring.Metrics) *Services {
	if cfg == nil {
		cfg = config.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Services{
		Config:   cfg,
		Catalog:  cat,
		Handlers: handlers,
		Sink:     sink,
		Logger:   logger,
		Metrics:  metrics,
	}
}
