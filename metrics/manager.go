package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-cache/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	manager         types.MetricsManager
	state           atomic.Value
	shutdownTimeout time.Duration
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.MetricsManager, error) {
	metricsConfig := config.GetConfig().Metrics

	if metricsConfig == nil || !metricsConfig.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	managerCtx, cancel := context.WithCancel(ctx)

	wrapper := &Manager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}

	wrapper.state.Store(ManagerStateStopped)

	if err := wrapper.initializeManager(metricsConfig); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	return wrapper, nil
}

func (w *Manager) initializeManager(metricsConfig *types.MetricsConfig) error {
	metricsManagerName := metricsConfig.Type

	var manager types.MetricsManager
	var err error

	switch metricsManagerName {
	case "prometheus":
		manager, err = NewPrometheusMetrics(w.ctx, w.logger, metricsConfig)
	default:
		if creator, exists := customMetricsCreators.Load(metricsManagerName); exists {
			manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
		} else {
			return types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsManagerName)
		}
	}

	if err != nil {
		return err
	}

	w.manager = manager
	w.logger.Info("Metrics manager initialized", zap.String("type", metricsManagerName))
	return nil
}

func (w *Manager) Start() error {
	if !w.transitionState(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrMetricsAlreadyRunning
	}

	defer func() {
		if w.getState() == ManagerStateStarting {
			w.setState(ManagerStateRunning)
		}
	}()

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	if w.manager != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return w.manager.Start()
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			w.setState(ManagerStateStopped)
			return types.NewErrorf("metrics manager start timeout")
		default:
			w.setState(ManagerStateStopped)
			return types.WrapError(err, "failed to start metrics manager")
		}
	}

	w.logger.Info("Metrics manager started successfully")
	return nil
}

func (w *Manager) Stop() error {
	if !w.transitionState(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrMetricsNotRunning
	}

	defer func() {
		w.setState(ManagerStateStopped)
		w.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	if w.manager != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return w.manager.Stop()
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			w.logger.Warn("Metrics manager stop timeout, some components may not have stopped gracefully")
		default:
			w.logger.Error("Error during metrics manager shutdown", zap.Error(err))
		}
	} else {
		w.logger.Info("Metrics manager stopped gracefully")
	}

	return nil
}

func (w *Manager) IsRunning() bool {
	return w.getState() == ManagerStateRunning
}

func (w *Manager) getState() ManagerState {
	return w.state.Load().(ManagerState)
}

func (w *Manager) setState(newState ManagerState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *Manager) transitionState(from, to ManagerState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *Manager) Counter(name string, labels map[string]string) types.Counter {
	if w.manager != nil && w.IsRunning() {
		return w.manager.Counter(name, labels)
	}
	return &emptyCounter{}
}

func (w *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if w.manager != nil && w.IsRunning() {
		return w.manager.Gauge(name, labels)
	}
	return &emptyGauge{}
}

func (w *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if w.manager != nil && w.IsRunning() {
		return w.manager.Histogram(name, buckets, labels)
	}
	return &emptyHistogram{}
}

func (w *Manager) GetMetrics() ([]byte, error) {
	if w.manager != nil && w.IsRunning() {
		return w.manager.GetMetrics()
	}
	return nil, types.ErrMetricsNotRunning
}

func (w *Manager) GetStats() ([]byte, error) {
	if w.manager != nil && w.IsRunning() {
		return w.manager.GetStats()
	}
	return nil, types.ErrMetricsNotRunning
}

type emptyCounter struct{}

func (c *emptyCounter) Inc()          {}
func (c *emptyCounter) Add(_ float64) {}
func (c *emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (g *emptyGauge) Set(_ float64) {}
func (g *emptyGauge) Inc()          {}
func (g *emptyGauge) Dec()          {}
func (g *emptyGauge) Add(_ float64) {}
func (g *emptyGauge) Sub(_ float64) {}
func (g *emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (h *emptyHistogram) Observe(_ float64)           {}
func (h *emptyHistogram) ObserveDuration(_ time.Time) {}
