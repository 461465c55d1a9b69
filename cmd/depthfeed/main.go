package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depthfeed/internal/audit"
	"depthfeed/internal/config"
	"depthfeed/internal/fabric/leader"
	"depthfeed/internal/fabric/sharedhost"
	"depthfeed/internal/fabric/shmem"
	"depthfeed/internal/frame"
	"depthfeed/internal/httpapi"
	"depthfeed/internal/model"
	"depthfeed/internal/producer"
	"depthfeed/internal/store"
	"depthfeed/internal/telemetry"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting depthfeed",
		zap.String("mode", string(cfg.Mode)),
		zap.String("exchange", string(cfg.Exchange)),
		zap.Int("depth", cfg.Depth))

	ctx, cancel := context.WithCancel(context.Background())

	endpoint := cfg.Exchange.Endpoint()

	auditLogger := audit.NewLogger(cfg.AuditDir)

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewRegistry(registry)

	var fabric producer.Fabric
	var statusSource httpapi.StatusSource
	var router http.Handler
	var elector *leader.Elector
	var bus *leader.Bus
	var tabID string

	switch cfg.Mode {
	case config.ModeBroadcast:
		fabric, elector, bus, tabID = wireLeaderReplicated(cfg, log)
	case config.ModeSharedMemory:
		fabric, statusSource = wireSharedMemory(ctx, log, metrics, auditLogger, endpoint.Symbol)
	default:
		fabric, statusSource = wireSharedHost(log)
	}

	host := producer.New(endpoint, cfg.Depth, fabric, log.Named("producer"))
	if statusSource == nil {
		statusSource = host
	}

	if elector != nil {
		// Only the elected leader owns a live Producer Host; followers
		// neither dial the exchange nor run their own Sequence
		// Manager/Book Engine (spec §4.5.2, §5).
		var presenceCancel context.CancelFunc
		elector.OnLeader = func() {
			host.Connect(ctx)
			var presenceCtx context.Context
			presenceCtx, presenceCancel = context.WithCancel(ctx)
			go leader.RunPresenceTracker(presenceCtx, bus)
		}
		elector.OnFollower = func() {
			host.Disconnect()
			if presenceCancel != nil {
				presenceCancel()
			}
		}
		go elector.Run(ctx)
		go leader.RunFollowerPing(ctx, bus, tabID)
	} else {
		host.Connect(ctx)
	}

	mux := httpapi.NewRouter(statusSource, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router = mux
	if hub, ok := fabric.(*sharedhost.Hub); ok {
		hub.SetDepth = host.SetDepth
		mux.Handle("/ws", hub)
	}

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	metricsTick := time.NewTicker(time.Second)
	defer metricsTick.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-metricsTick.C:
				slice := host.Book().Published()
				auditLogger.Log(audit.RowFromSlice(endpoint.Symbol, slice))
				if cfg.Mode != config.ModeSharedMemory {
					// In shared-memory mode the embedded consumer's Frame
					// Bridge owns the metrics registry; elsewhere there is
					// no per-consumer FB running in this process, so the
					// producer-side counters are the only signal available.
					metrics.Set(model.Metrics{
						ReconnectCount: host.ReconnectCount(),
						SequenceGaps:   host.SequenceGaps(),
					})
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	host.Disconnect()
	cancel()
	_ = httpServer.Shutdown(context.Background())
	auditLogger.Close()
}

// wireSharedHost builds the shared-host fabric: a websocket hub all
// consumers connect to directly.
func wireSharedHost(log *zap.Logger) (producer.Fabric, httpapi.StatusSource) {
	hub := sharedhost.NewHub(log.Named("sharedhost"))
	go hub.Run()
	return hub, nil
}

// wireLeaderReplicated builds the leader-replicated fabric: an election
// cell (Redis-backed if configured, in-memory otherwise), the bus the
// eventual leader publishes onto, and the Elector that decides which
// process that is. The caller wires elector.OnLeader/OnFollower to the
// Producer Host once it exists and starts the election loop.
func wireLeaderReplicated(cfg *config.Config, log *zap.Logger) (producer.Fabric, *leader.Elector, *leader.Bus, string) {
	bus := leader.NewBus()

	var cell leader.ElectionCell
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid redis URL", zap.Error(err))
		}
		cell = leader.NewRedisCell(redis.NewClient(opts), "depthfeed:leader")
	} else {
		cell = leader.NewMemoryCell()
	}

	tabID := uuid.NewString()
	elector := leader.NewElector(cell, tabID, log.Named("elector"))

	fab := leader.NewFabric(bus)
	return fab, elector, bus, tabID
}

// wireSharedMemory builds the shared-memory fabric and an embedded
// consumer (Frame Bridge + Reactive Store) purely to exercise the
// Region/Reader contract end to end; no window renders it.
func wireSharedMemory(ctx context.Context, log *zap.Logger, metrics *telemetry.Registry, auditLogger *audit.Logger, symbol string) (producer.Fabric, httpapi.StatusSource) {
	fab, region := shmem.NewFabric(16)
	reader := shmem.NewReader(region)

	s := store.New()
	bridge := frame.NewBridge(s, nil)

	go func() {
		ticker := time.NewTicker(16 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if slice, ok := reader.Poll(s.Snapshot().Frozen); ok {
					bridge.Receive(slice)
				}
				bridge.Tick()
			case msg := <-fab.Control():
				if msg.Ready {
					log.Info("shared-memory region ready")
					continue
				}
				if msg.ErrMsg != "" || msg.Status != 0 {
					var statusErr error
					if msg.ErrMsg != "" {
						statusErr = errors.New(msg.ErrMsg)
					}
					s.SetStatus(msg.Status, statusErr)
				}
			}
		}
	}()

	s.Subscribe(func(st store.State) {
		metrics.Set(st.Metrics)
	}, store.FieldMetrics)

	return fab, statusSourceFunc(func() model.ConnectionStatus { return s.Snapshot().Status })
}

type statusSourceFunc func() model.ConnectionStatus

func (f statusSourceFunc) Status() model.ConnectionStatus { return f() }
