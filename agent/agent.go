package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chorusflow/chorus/action"
	"github.com/chorusflow/chorus/cache"
	"github.com/chorusflow/chorus/config"
	"github.com/chorusflow/chorus/correlation"
	"github.com/chorusflow/chorus/engine"
	"github.com/chorusflow/chorus/event"
	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/notification"
	"github.com/chorusflow/chorus/persistence"
	"github.com/chorusflow/chorus/persistence/inmem"
	rd "github.com/chorusflow/chorus/persistence/redis"
	"github.com/chorusflow/chorus/rest"
	"github.com/chorusflow/chorus/service"
	"github.com/chorusflow/chorus/stream"
	"github.com/chorusflow/chorus/util"
)

// Agent is the composition root: it builds every component from config and
// owns startup and shutdown ordering.
type Agent struct {
	Config config.Config

	workflows  persistence.WorkflowStorage
	executions persistence.ExecutionStorage
	eventStore event.Store
	defCache   *cache.DefinitionCache
	notifier   *notification.Notifier
	corrEngine *correlation.Engine
	corrGC     *util.TickWorker
	stream     *stream.Stream
	engine     *engine.Engine
	httpServer *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{Config: conf}
	setup := []func() error{
		a.setupStorage,
		a.setupEventStore,
		a.setupStream,
		a.setupEngine,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.workflows = rd.NewWorkflowStorage(rdConf)
		a.executions = rd.NewExecutionStorage(rdConf)
	default:
		a.workflows = inmem.NewWorkflowStorage()
		a.executions = inmem.NewExecutionStorage()
	}
	a.defCache = cache.NewDefinitionCache(time.Duration(a.Config.DefinitionCacheTTL) * time.Second)
	return nil
}

func (a *Agent) setupEventStore() error {
	switch a.Config.EventStoreType {
	case config.EVENT_STORE_SQLITE:
		store, err := event.NewSqliteStore(a.Config.EventStorePath)
		if err != nil {
			return err
		}
		a.eventStore = store
	default:
		a.eventStore = event.NewMemoryStore()
	}
	return nil
}

func (a *Agent) setupStream() error {
	var pub stream.Publisher
	if a.Config.PublishEvents {
		pub = rd.NewEventPublisher(rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	}
	retention := time.Duration(a.Config.CorrelationRetention) * time.Second
	a.stream = stream.NewStream(a.Config.StreamName, a.Config.StreamCapacity, a.eventStore, nil, pub, &a.wg)
	// Correlation events re-enter the loop off the consumer goroutine so a
	// full queue can not deadlock it.
	a.corrEngine = correlation.NewEngine(func(ev model.Event) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.stream.Publish(ctx, ev); err != nil {
				logger.Error("error re-publishing correlation event")
			}
		}()
	}, retention)
	for _, rule := range defaultCorrelationRules() {
		if err := a.corrEngine.RegisterRule(rule); err != nil {
			return err
		}
	}
	a.stream.SetCorrelation(a.corrEngine)
	a.stream.Start()

	gcInterval := time.Duration(a.Config.CorrelationGCInterval) * time.Second
	if gcInterval <= 0 {
		gcInterval = time.Minute
	}
	a.corrGC = util.NewTickWorker("correlation-gc", gcInterval, a.corrEngine.GC, &a.wg)
	a.corrGC.Start()
	return nil
}

// defaultCorrelationRules are registered on startup; callers may add more
// through the engine before publishing traffic.
func defaultCorrelationRules() []model.CorrelationRule {
	return []model.CorrelationRule{
		{
			Name: "error-burst",
			Conditions: model.RuleConditions{
				EventType:          model.EVENT_ERROR,
				MinEvents:          5,
				MaxTimeSpanSeconds: 300,
			},
			WindowSeconds: 300,
		},
		{
			Name: "repeated-step-failure",
			Conditions: model.RuleConditions{
				EventType:          model.EVENT_STEP_FAILED,
				MinEvents:          3,
				MaxTimeSpanSeconds: 120,
			},
			WindowSeconds: 120,
		},
	}
}

func (a *Agent) setupEngine() error {
	a.notifier = notification.NewNotifier()
	registry := action.NewRegistry(
		action.NewServiceCallExecutor(&http.Client{Timeout: 30 * time.Second}),
		action.NewPromptExecutor(nil),
		action.NewTransformExecutor(),
		action.NewWaitExecutor(),
		action.NewNotificationExecutor(a.notifier),
	)
	a.engine = engine.New(a.workflows, a.executions, a.defCache, registry, a.stream,
		a.Config.MaxConcurrentActions, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	workflowService := service.NewWorkflowService(a.workflows, a.executions, a.defCache, a.eventStore)
	executionService := service.NewExecutionService(a.engine, a.executions, a.eventStore)
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, workflowService, executionService)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped")
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	logger.Info("shutting down")
	a.httpServer.Stop()
	a.corrGC.Stop()
	a.stream.Stop()
	a.wg.Wait()
	a.stream.Drain()
	return a.eventStore.Close()
}
