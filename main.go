package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"clron/auth"
	"clron/blob"
	"clron/chat"
	"clron/config"
	"clron/provider"
	"clron/server"
	"clron/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	logKeyPresence()

	providers := provider.InitializeProviders(cfg)
	active := providers[cfg.DefaultProvider]
	if active == nil {
		if cfg.ProviderByID(cfg.DefaultProvider) == nil {
			log.Printf("[Startup] Warning: default provider %q is not in the configuration", cfg.DefaultProvider)
		}
		log.Printf("[Startup] Warning: default provider %q is not available, chat requests will fail with 503", cfg.DefaultProvider)
	} else {
		log.Printf("[Startup] Using provider %q with model %q", cfg.DefaultProvider, active.GetModel())
	}

	store, err := storage.NewChatStore(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to initialize chat storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := blob.NewLocalStore(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to initialize upload storage: %v\n", err)
		os.Exit(1)
	}

	verifier, err := auth.LoadTokenFile(cfg.TokenFile)
	if err != nil {
		fmt.Printf("Failed to load token file: %v\n", err)
		os.Exit(1)
	}

	orchestrator := chat.NewOrchestrator(chat.Config{
		Provider:            active,
		Store:               store,
		Blobs:               blobs,
		DefaultSystemPrompt: cfg.DefaultSystemPrompt,
		ImageBudgetKB:       cfg.ImageBudgetKB,
		HistoryLimit:        cfg.HistoryLimit,
	})

	srv := &server.Server{
		Orchestrator: orchestrator,
		Store:        store,
		Blobs:        blobs,
		Verifier:     verifier,
	}

	log.Printf("[Startup] clron %s listening on %s", server.Version, cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Handler()); err != nil {
		fmt.Printf("Server stopped: %v\n", err)
		os.Exit(1)
	}
}

func logKeyPresence() {
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
		if os.Getenv(name) != "" {
			log.Printf("[Startup] %s is set", name)
		} else {
			log.Printf("[Startup] %s is not set", name)
		}
	}
}
