package main

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	rpclog "github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/rpc"
)

//go:embed config/migrations/*/*.sql
var embedMigrations embed.FS

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const (
	rpcNodeTracer   = "wcnode/rpc"
	shutdownTimeout = 5 * time.Second
)

func main() {
	logger := NewLoggerIPFS("root")
	if len(os.Args) > 1 {
		// If a CLI command is provided, run it and exit
		runCli(logger, os.Args[1])
		return
	}

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	logger.Info("starting wcnode", "version", Version, "mode", config.env.Mode)

	db, err := ConnectToDB(config.dbConf, logger)
	if err != nil {
		logger.Fatal("Failed to setup database", "error", err)
	}

	networks := NewNetworkStore(db, config.networks)
	state, err := NewWalletState(db, config.keyring, config.defaultWalletSettings())
	if err != nil {
		logger.Fatal("failed to load wallet state", "error", err)
	}
	logger.Info("wallet state loaded", "activeChainId", state.ActiveChainID(), "activeAccount", state.ActiveAccount().AddressC)

	contacts := NewContactStore(db)
	requests := NewRequestStore(db)
	sessions := NewSessionStore(db)

	// Waiters do not survive a restart, so nothing can answer these any more.
	abandoned, err := requests.AbandonInFlight()
	if err != nil {
		logger.Fatal("failed to abandon unanswered requests", "error", err)
	}
	if abandoned > 0 {
		logger.Warn("abandoned requests left unanswered by the previous run", "count", abandoned)
	}

	// Initialize Prometheus metrics
	metrics := NewMetrics()

	reporter, err := NewErrorReporter(config.env.SentryDSN, string(config.env.Mode), logger)
	if err != nil {
		logger.Fatal("failed to initialize error reporter", "error", err)
	}
	defer reporter.Flush()

	networkService := NewEthNetworkService(nil, config.env.NetworkCallsPerSecond)
	defer networkService.Close()

	origins := NewOriginPolicy(splitList(config.env.TrustedOrigins)...)

	peerAuth, err := NewPeerAuth(config.authKey, config.env.PeerTokenTTL)
	if err != nil {
		logger.Fatal("failed to initialize peer auth", "error", err)
	}

	rpcNode, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Logger:       rpclog.NewZapLogger(config.env.Log),
		Authenticate: peerAuth.AuthenticatePeer,
		Tracer:       rpcNodeTracer,
		OnConnectHandler: func(conn rpc.Connection) {
			metrics.ConnectedPeers.WithLabelValues(conn.Role()).Inc()
		},
		OnDisconnectHandler: func(conn rpc.Connection) {
			metrics.ConnectedPeers.WithLabelValues(conn.Role()).Dec()
		},
		OnMessageSentHandler: func(role string, _ []byte) {
			metrics.MessageSent.WithLabelValues(role).Inc()
		},
		OnMessageReceivedHandler: func(role, method string) {
			metrics.MessageReceived.WithLabelValues(role, method).Inc()
		},
	})
	if err != nil {
		logger.Fatal("failed to initialize rpc node", "error", err)
	}

	wsNotifier := NewWSNotifier(rpcNode.Notify, logger)
	transport := NewRelayTransport(rpcNode.Notify)
	bus := NewEventBus()

	registry, err := NewHandlerRegistry(
		NewSessionProposalHandler(networks, state, origins, wsNotifier),
		NewSendTransactionHandler(networks, state, networkService, wsNotifier, reporter, requests, metrics),
		NewSignMessageHandler(networks, state, wsNotifier, reporter),
		NewAddChainHandler(networks, state, networkService, wsNotifier),
		NewSwitchChainHandler(networks, state, wsNotifier),
		NewSelectAccountHandler(state, wsNotifier),
		NewGetAccountsHandler(state),
		NewContactHandler(contacts, wsNotifier),
	)
	if err != nil {
		logger.Fatal("failed to register handlers", "error", err)
	}
	logger.Info("handlers registered", "methods", registry.Methods())

	validator := NewRequestValidator(networks, state)
	processor := NewRequestProcessor(registry, validator.Validate, bus, requests, metrics, logger, RequestProcessorConfig{
		ApprovalTimeout: config.env.ApprovalTimeout,
		DedupWindow:     config.env.DedupWindow,
	})
	listener := NewWalletListener(bus, transport, wsNotifier, sessions, metrics, logger)

	NewRelayRouter(rpcNode, processor, sessions, listener)
	NewUIRouter(rpcNode, processor, listener, requests)

	retention, err := NewRetentionWorker(requests, config.env.RetentionCron, config.env.RetentionPeriod, logger)
	if err != nil {
		logger.Fatal("failed to initialize retention worker", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(ctx)
		}()
	}
	runWorker(processor.Run)
	runWorker(listener.Run)
	runWorker(retention.Start)
	runWorker(func(ctx context.Context) {
		metrics.RecordMetricsPeriodically(ctx, requests, sessions, logger)
	})

	rpcMux := http.NewServeMux()
	rpcMux.Handle("/"+PeerRoleRelay, rpcNode)
	rpcMux.Handle("/"+PeerRoleUI, rpcNode)

	rpcServer := &http.Server{
		Addr:    config.env.RPCListenAddr,
		Handler: rpcMux,
	}

	adminServer := &http.Server{
		Addr:    config.env.AdminListenAddr,
		Handler: NewAdminAPI(requests, sessions, networks, state, processor, logger).Router(),
	}

	metricsEndpoint := "/metrics"
	// Set up a separate mux for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    config.env.MetricsListenAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", metricsServer.Addr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	go func() {
		logger.Info("admin API available", "listenAddr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failure", "error", err)
		}
	}()

	// Start the main HTTP server.
	go func() {
		logger.Info("RPC server available", "listenAddr", rpcServer.Addr, "relay", "/"+PeerRoleRelay, "ui", "/"+PeerRoleUI)
		if err := rpcServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("RPC server failure", "error", err)
		}
	}()

	// Wait for shutdown signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	for name, server := range map[string]*http.Server{"metrics": metricsServer, "admin": adminServer, "RPC": rpcServer} {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down server", "server", name, "error", err)
		}
		shutdownCancel()
	}

	cancel()
	bus.Close()
	workers.Wait()

	logger.Info("shutdown complete")
}

func runCli(logger Logger, name string) {
	switch name {
	case "export-requests":
		runExportRequestsCli(logger)
	case "issue-token":
		runIssueTokenCli(logger)
	default:
		logger.Fatal("Unknown CLI command", "name", name)
	}
}
