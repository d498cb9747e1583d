package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-rawchat/internal/api"
	"github.com/npezzotti/go-rawchat/internal/config"
	"github.com/npezzotti/go-rawchat/internal/database"
	"github.com/npezzotti/go-rawchat/internal/repository"
	"github.com/npezzotti/go-rawchat/internal/server"
	"github.com/npezzotti/go-rawchat/internal/session"
	"github.com/npezzotti/go-rawchat/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	statsAddr      string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "chat server address")
	flag.StringVar(&statsAddr, "stats-addr", "localhost:8001", "admin address serving /debug/vars")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded session token signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of origins allowed to open websockets")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, statsAddr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	store, err := database.NewPgChatStore(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if err := store.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	accounts := repository.NewAccounts(logger, store)
	rooms := repository.NewRooms(logger, store)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if err := accounts.Load(loadCtx); err != nil {
		logger.Fatal("warm cache:", err)
	}
	if err := rooms.Load(loadCtx); err != nil {
		logger.Fatal("warm cache:", err)
	}
	cancelLoad()

	adminMux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(adminMux)
	statsUpdater.Run()

	srv := server.NewServer(logger, cfg, statsUpdater)
	api.NewGoChatApp(srv, logger, store, accounts, rooms, session.NewStore(cfg.SigningKey), statsUpdater)
	statsUpdater.Set(stats.NumRooms, int64(rooms.Len()))

	admin := &http.Server{
		Addr: cfg.StatsAddr,
		Handler: handlers.CombinedLoggingHandler(logger.Writer(),
			handlers.RecoveryHandler(handlers.RecoveryLogger(logger))(adminMux)),
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.ListenAndServe(cfg.ServerAddr)
	}()
	go func() {
		logger.Printf("starting admin server on %s", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	if err := admin.Shutdown(shutDownCtx); err != nil {
		logger.Println("admin server shutdown:", err)
	}

	logger.Println("closing rooms...")
	rooms.Close()
	statsUpdater.Stop()

	logger.Println("shutdown complete")
}
