// Command quillpad-server runs the collaborative editing HTTP/websocket
// server over an optional sqlite-backed document store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shiv248/quillpad/pkg/database"
	"github.com/shiv248/quillpad/pkg/logger"
	"github.com/shiv248/quillpad/pkg/room"
)

// Config holds all server configuration, sourced from the environment.
type Config struct {
	Port                string
	ExpiryDays          int
	SQLiteURI           string
	CleanupInterval     time.Duration
	MaxDocumentSize     int
	WSReadTimeout       time.Duration
	WSWriteTimeout      time.Duration
	BroadcastBufferSize int
}

func main() {
	logger.Init()

	config := Config{
		Port:                getEnv("PORT", "3030"),
		ExpiryDays:          getEnvInt("EXPIRY_DAYS", 7),
		SQLiteURI:           os.Getenv("SQLITE_URI"),
		CleanupInterval:     time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", 1)) * time.Hour,
		MaxDocumentSize:     getEnvInt("MAX_DOCUMENT_SIZE_KB", 256) * 1024,
		WSReadTimeout:       time.Duration(getEnvInt("WS_READ_TIMEOUT_MINUTES", 30)) * time.Minute,
		WSWriteTimeout:      time.Duration(getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		BroadcastBufferSize: getEnvInt("BROADCAST_BUFFER_SIZE", 16),
	}

	logger.Info("starting quillpad server...")
	logger.Info("port: %s", config.Port)
	logger.Info("document expiry: %d days", config.ExpiryDays)

	var db *database.Database
	if config.SQLiteURI != "" {
		logger.Info("database: %s", config.SQLiteURI)
		var err error
		db, err = database.New(config.SQLiteURI)
		if err != nil {
			logger.Error("failed to initialize database: %v", err)
			log.Fatalf("failed to initialize database: %v", err)
		}
		defer db.Close()
	} else {
		logger.Info("database: disabled (in-memory only)")
	}

	srv := room.NewServer(db, config.MaxDocumentSize, config.BroadcastBufferSize, config.WSReadTimeout, config.WSWriteTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.StartCleaner(ctx, config.ExpiryDays, config.CleanupInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down...")
		cancel()
		srv.Shutdown(ctx)
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%s", config.Port)
	log.Fatal(srv.ListenAndServe(addr))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
