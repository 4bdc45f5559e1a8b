package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillsync-server/internal/config"
	"tillsync-server/internal/handler"
	"tillsync-server/internal/middleware"
	"tillsync-server/internal/repository"
	"tillsync-server/internal/service"
	"tillsync-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	if err := repository.EnsureIndexes(context.Background(), client, cfg.Database.Name); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	recordRepo := repository.NewRecordRepository(client, cfg.Database.Name)
	conflictRepo := repository.NewConflictRepository(client, cfg.Database.Name)
	receiptRepo := repository.NewReceiptRepository(client, cfg.Database.Name)
	storeRepo := repository.NewStoreRepository(client, cfg.Database.Name)
	terminalRepo := repository.NewTerminalRepository(client, cfg.Database.Name)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerStore,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run()

	terminalService := service.NewTerminalService(terminalRepo)

	pushService := service.NewPushService(recordRepo, conflictRepo, receiptRepo, cfg.Sync.ReceiptTTL)
	pushService.SetAuditHook(func(entry service.AuditEntry) {
		log.Printf("[AUDIT] store=%s terminal=%s table=%s local_id=%s status=%s",
			entry.Scope.StoreID, entry.Scope.TerminalID, entry.Table, entry.LocalID, entry.Status)
		if entry.Scope.TerminalID != "" {
			if err := terminalService.TouchLastSeen(context.Background(), entry.Scope.TerminalID); err != nil {
				log.Printf("Failed to touch terminal %s: %v", entry.Scope.TerminalID, err)
			}
		}
	})

	pullService := service.NewPullService(recordRepo, cfg.Sync.PullTableLimit)
	conflictService := service.NewConflictService(conflictRepo, pushService)
	authService := service.NewAuthService(storeRepo, terminalRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	storeService := service.NewStoreService(storeRepo)

	syncHandler := handler.NewSyncHandler(pushService, pullService, wsManager, cfg.Sync.PushTimeout, cfg.Sync.PullTimeout, cfg.Sync.PushBatchSize)
	conflictHandler := handler.NewConflictHandler(conflictService)
	authHandler := handler.NewAuthHandler(authService)
	storeHandler := handler.NewStoreHandler(storeService)
	terminalHandler := handler.NewTerminalHandler(terminalService)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/stores/register", storeHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/stores/me", storeHandler.GetMe).Methods("GET", "OPTIONS")

	protected.HandleFunc("/terminals", terminalHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/terminals/{id}", terminalHandler.Revoke).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync/push", syncHandler.Push).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sync/pull", syncHandler.Pull).Methods("GET", "OPTIONS")

	protected.HandleFunc("/conflicts", conflictHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}", conflictHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}/resolve", conflictHandler.Resolve).Methods("POST", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}/reject", conflictHandler.Reject).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweepReceipts(sweepCtx, receiptRepo, cfg.Sync.ReceiptSweep)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting TillSync Server on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

// sweepReceipts periodically drops push receipts past their retention window.
func sweepReceipts(ctx context.Context, receipts repository.ReceiptRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := receipts.Sweep(ctx)
			if err != nil {
				log.Printf("Receipt sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Receipt sweep removed %d expired receipts", n)
			}
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"tillsync-server"}`))
}
