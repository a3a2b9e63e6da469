package main

import (
	"net/http"

	"roulette_server/config"
	"roulette_server/routes"
	"roulette_server/services"
	"roulette_server/socket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.JSONFormatter{})

	registry := prometheus.NewRegistry()
	metrics := services.NewMetrics(registry)

	// Store backend: DynamoDB in deployment, in-memory for local runs
	var (
		queue      services.QueueStore
		matches    services.MatchTable
		cooldowns  services.CooldownLedger
		locks      services.PairingLock
		leftBehind services.LeftBehindStore
	)
	if cfg.UseMemoryStore {
		log.Info("Using in-memory store backend")
		queue = services.NewMemoryQueueStore()
		matches = services.NewMemoryMatchTable()
		cooldowns = services.NewMemoryCooldownLedger(cfg.NormalCooldown, cfg.SkipCooldown)
		locks = services.NewMemoryPairingLock()
		leftBehind = services.NewMemoryLeftBehindStore()
	} else {
		log.Info("Initializing DynamoDB client...")
		client, err := services.InitializeDynamoDBClient(cfg.AWSRegion)
		if err != nil {
			log.Fatalf("Failed to initialize DynamoDB client: %v", err)
		}
		dynamo := &services.DynamoService{Client: client}
		queue = &services.DynamoQueueStore{Dynamo: dynamo}
		matches = &services.DynamoMatchTable{Dynamo: dynamo}
		cooldowns = &services.DynamoCooldownLedger{
			Dynamo:    dynamo,
			NormalTTL: cfg.NormalCooldown,
			SkipTTL:   cfg.SkipCooldown,
		}
		locks = &services.DynamoPairingLock{Dynamo: dynamo}
		leftBehind = &services.DynamoLeftBehindStore{Dynamo: dynamo}
		log.Info("DynamoDB client initialized.")
	}

	// Video-room provider collaborator
	var rooms services.RoomProvider
	if cfg.RoomProviderURL != "" {
		rooms = services.NewHTTPRoomProvider(cfg.RoomProviderURL, cfg.RoomProviderAPIKey)
	} else {
		log.Warn("ROOM_PROVIDER_URL not set, using in-memory room provider")
		rooms = services.NewStaticRoomProvider()
	}

	matchmakingService := &services.MatchmakingService{
		Queue:           queue,
		Matches:         matches,
		Cooldowns:       cooldowns,
		Locks:           locks,
		LeftBehind:      leftBehind,
		Rooms:           rooms,
		Metrics:         metrics,
		TicketMaxAge:    cfg.TicketMaxAge,
		MatchMaxAge:     cfg.MatchMaxAge,
		LockTTL:         cfg.PairLockTTL,
		DisconnectGrace: cfg.DisconnectGrace,
	}
	leftBehindService := &services.LeftBehindService{
		Store:   leftBehind,
		Matches: matches,
		TTL:     cfg.LeftBehindTTL,
	}
	reconciliationService := &services.ReconciliationService{
		Matches:    matches,
		Queue:      queue,
		LeftBehind: leftBehind,
		Rooms:      rooms,
		Metrics:    metrics,
		Interval:   cfg.ReconcileInterval,
		Debounce:   cfg.ReconcileDebounce,
	}
	healthService := &services.HealthService{
		Queue:      queue,
		Matches:    matches,
		Cooldowns:  cooldowns,
		Locks:      locks,
		LeftBehind: leftBehind,
	}

	reconciliationService.Start()
	defer reconciliationService.Stop()

	r := mux.NewRouter()

	routes.RegisterMatchmakingRoutes(r, matchmakingService, leftBehindService)
	routes.RegisterHealthRoutes(r, healthService)
	routes.RegisterWebhookRoutes(r, reconciliationService)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	socketServer := socket.NewSocketServer(matchmakingService, reconciliationService)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("Socket server error: %v", err)
		}
	}()
	defer socketServer.Close()
	r.Handle("/socket.io/", socketServer)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	log.Printf("Starting server on port %s...", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, corsHandler))
}
