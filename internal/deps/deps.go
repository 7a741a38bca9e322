package deps

import (
	"github.com/go-playground/validator/v10"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/auth"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/clock"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/events"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/metrics"
	"go.uber.org/zap"
)

// Deps holds the ambient collaborators shared by every component.
type Deps struct {
	Logger       *zap.SugaredLogger
	TokenManager *auth.TokenManager
	Metrics      *metrics.Metrics
	Events       *events.Publisher
	Clock        clock.Clock
	Validator    *validator.Validate
}

func NewDependencies(secretKey string) *Deps {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout", "server.log"}

	logger := zap.Must(logCfg.Build())

	deps := Deps{
		Logger:       logger.Sugar(),
		TokenManager: auth.NewTokenManager(secretKey),
		Metrics:      metrics.New(),
		Clock:        clock.Real{},
		Validator:    validator.New(validator.WithRequiredStructEnabled()),
	}

	return &deps
}

// WithBus attaches an event bus. Without one events are dropped.
func (d *Deps) WithBus(bus events.Bus) *Deps {
	d.Events = events.NewPublisher(bus, d.Logger)
	return d
}

// NewTestDependencies builds deps that log to nop and use a fixed clock.
func NewTestDependencies(clk clock.Clock) *Deps {
	return &Deps{
		Logger:       zap.NewNop().Sugar(),
		TokenManager: auth.NewTokenManager("test-secret"),
		Metrics:      metrics.New(),
		Clock:        clk,
		Validator:    validator.New(validator.WithRequiredStructEnabled()),
	}
}
