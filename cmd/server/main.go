package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cbodonnell/hokm/pkg/api"
	authproviders "github.com/cbodonnell/hokm/pkg/auth/providers"
	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/config"
	"github.com/cbodonnell/hokm/pkg/game"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/queue"
	"github.com/cbodonnell/hokm/pkg/repositories"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/cbodonnell/hokm/pkg/version"
	"github.com/cbodonnell/hokm/pkg/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	port := flag.Int("port", 9090, "HTTP port for the API and websocket endpoint")
	tcpPort := flag.Int("tcp-port", 0, "TCP port to listen on, 0 disables the TCP transport")
	logLevel := flag.String("log-level", "info", "Log level")
	databaseURL := flag.String("database-url", getEnv("HOKM_DATABASE_URL", "sqlite://hokm.db"), "Room store: memory://, sqlite://<path> or postgresql://...")
	migrations := flag.String("migrations", "./migrations/sqlite", "SQLite migrations directory")
	ruleEngineURL := flag.String("rule-engine-url", os.Getenv("HOKM_RULE_ENGINE_URL"), "Base URL of the game rule engine")
	authMode := flag.String("auth", "static", "Auth provider: static or firebase")
	allowOrigin := flag.String("allow-origin", "*", "Allowed CORS origin")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncConfig := config.SyncFromEnv()

	authProvider, err := newAuthProvider(ctx, *authMode)
	if err != nil {
		panic(fmt.Sprintf("Failed to create auth provider: %v", err))
	}

	repository, err := repositories.NewRepository(ctx, repositories.NewRepositoryOptions{
		URL:           *databaseURL,
		MigrationsDir: *migrations,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to open repository: %v", err))
	}
	defer repository.Close(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clientManager := network.NewClientManager()
	clientMessageQueue := queue.NewInMemoryQueue(10000)

	broadcaster, err := broadcast.NewBroadcaster(broadcast.NewBroadcasterOptions{
		Registry: clientManager,
		Config:   syncConfig,
		Stats:    broadcast.NewBandwidthStats(registry),
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create broadcaster: %v", err))
	}
	defer broadcaster.Close()

	var ruleEngine game.RuleEngine
	if *ruleEngineURL != "" {
		ruleEngine, err = game.NewHTTPRuleEngine(game.NewHTTPRuleEngineOptions{BaseURL: *ruleEngineURL})
		if err != nil {
			panic(fmt.Sprintf("Failed to create rule engine client: %v", err))
		}
	} else {
		log.Warn("No rule engine configured, game actions will be rejected")
	}

	stateManager := state.NewInMemoryStateManager()
	saveRequests := make(chan string, 100)
	gameSync := game.NewGameSync(game.NewGameSyncOptions{
		RuleEngine:      ruleEngine,
		StateManager:    stateManager,
		Broadcaster:     broadcaster,
		Repository:      repository,
		SaveRequests:    saveRequests,
		DebounceActions: syncConfig.DebounceActions,
	})
	if err := gameSync.RestoreRooms(ctx); err != nil {
		log.Error("Failed to restore rooms: %v", err)
	}

	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		AuthProvider:  authProvider,
		ClientManager: clientManager,
		MessageQueue:  clientMessageQueue,
		TCPPort:       *tcpPort,
		Members:       gameSync,
	})

	var wg sync.WaitGroup
	run := func(start func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}

	run(workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		ConnectionEventChan: clientManager.GetConnectionEventChan(),
		Registry:            clientManager,
		Broadcaster:         broadcaster,
	}).Start)
	run(workers.NewClientMessageWorker(workers.NewClientMessageWorkerOptions{
		ClientMessageQueue: clientMessageQueue,
		Broadcaster:        broadcaster,
		Actions:            gameSync,
		Sender:             networkManager,
		ResyncRate:         syncConfig.ResyncRate,
		ResyncBurst:        syncConfig.ResyncBurst,
	}).Start)
	run(workers.NewPruneWorker(workers.NewPruneWorkerOptions{
		Broadcaster: broadcaster,
		Interval:    syncConfig.PruneInterval,
	}).Start)
	run(workers.NewSaveRoomWorker(workers.NewSaveRoomWorkerOptions{
		Repository:   repository,
		SaveRequests: saveRequests,
		StateManager: stateManager,
		Members:      gameSync,
		Interval:     syncConfig.SaveInterval,
	}).Start)

	networkManager.Start(ctx)

	apiServerOpts := api.NewAPIServerOptions{
		Port:         *port,
		AllowOrigin:  *allowOrigin,
		AuthProvider: authProvider,
		Rooms:        &rooms{GameSync: gameSync, clients: clientManager},
		Stats:        broadcaster,
		Gatherer:     registry,
		WebSocket:    networkManager.WebSocketHandler(network.WSHandlerOptions{}),
	}
	tlsCertFile := os.Getenv("HOKM_API_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("HOKM_API_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	server := api.NewAPIServer(apiServerOpts)
	go server.Start()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
	wg.Wait()
}

// rooms closes the connections of a room along with its game state.
type rooms struct {
	*game.GameSync
	clients *network.ClientManager
}

func (r *rooms) CloseRoom(ctx context.Context, room string) error {
	err := r.GameSync.CloseRoom(ctx, room)
	if err != nil && !errors.Is(err, broadcast.ErrUnknownRoom) {
		return err
	}
	r.clients.CloseRoom(room)
	return err
}

func newAuthProvider(ctx context.Context, mode string) (authproviders.AuthProvider, error) {
	switch mode {
	case "static":
		log.Warn("Using static auth provider, tokens are not verified")
		return authproviders.NewStaticAuthProvider(), nil
	case "firebase":
		projectID := os.Getenv("HOKM_FIREBASE_PROJECT_ID")
		if projectID == "" {
			return nil, fmt.Errorf("HOKM_FIREBASE_PROJECT_ID environment variable must be set")
		}
		return authproviders.NewFirebaseAuthProvider(ctx, authproviders.NewFirebaseAuthProviderOptions{
			ProjectID:       projectID,
			CredentialsFile: os.Getenv("HOKM_FIREBASE_CREDENTIALS_FILE"),
		})
	default:
		return nil, fmt.Errorf("unknown auth provider %q", mode)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
