package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qckiosk/config"
	"qckiosk/engine"
	"qckiosk/messaging"
	"qckiosk/store"
	"qckiosk/www"
)

func main() {
	configPath := flag.String("config", "qckiosk.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create the engine; the router must exist first so its prompt broker
	// can be installed as the controller's operator-facing prompter.
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		LogFunc:    log.Printf,
	})

	router, prompts, stopWeb := www.NewRouter(eng)
	defer stopWeb()
	eng.Prompter = prompts

	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	// Set up plant messaging (optional observability)
	if cfg.Messaging.Enabled {
		if cfg.Messaging.MQTT.ClientID == "" {
			cfg.Messaging.MQTT.ClientID = cfg.DeviceID
		}
		msgClient := messaging.NewClient(&cfg.Messaging)
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (telemetry disabled)", err)
		} else {
			hb := messaging.NewHeartbeater(msgClient, cfg.DeviceID, engine.Version,
				cfg.Messaging.TelemetryTopic, cfg.Messaging.HeartbeatInterval)
			hb.Start()
			defer hb.Stop()

			telemetry := messaging.NewTelemetry(msgClient, cfg.DeviceID, cfg.Messaging.TelemetryTopic)
			telemetry.Attach(eng.Events)
			defer telemetry.Detach()
		}
	}

	// Set up HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("QC kiosk listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	// Graceful HTTP shutdown with 10s deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
