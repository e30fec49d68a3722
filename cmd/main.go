package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"flag"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"raffle/internal/config"
	"raffle/internal/display"
	"raffle/internal/draw"
	"raffle/internal/handlers"
	"raffle/internal/services"
	"raffle/internal/storage"
)

//go:embed all:templates
var templateFS embed.FS

func main() {
	configPath := flag.String("config", "raffle.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load configuration: .env, then the YAML file, then RAFFLE_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to read .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging.
	logOut := os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	defer logger.Init("raffle", cfg.LogVerbose, false, logOut).Close()

	// 3. Open the data directory and the results history.
	clock := clockwork.NewRealClock()
	store := storage.NewFileStore(cfg.DataDir, cfg.BackupLimit, clock)
	if err := store.Init(); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := sql.Open("sqlite3", cfg.HistoryPath())
	if err != nil {
		logger.Fatalf("Failed to open history: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	history := storage.NewHistory(db)
	if err := history.InitSchema(); err != nil {
		logger.Fatalf("Failed to init history schema: %v", err)
	}

	// 4. Initialize the display hub and the Lottery Service.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := display.NewHub(display.DefaultConfig())
	go hub.Run(ctx)

	lotteryService := services.NewLotteryService(store, history, services.Options{
		Mode:         cfg.Mode(),
		TickInterval: cfg.TickInterval,
		Clock:        clock,
		Rand:         draw.NewRandomSource(),
		Publish:      hub.Publish,
	})
	if err := lotteryService.Load(); err != nil {
		logger.Errorf("Some data could not be loaded, continuing with defaults: %v", err)
	}

	// 5. Load HTML templates from the embedded filesystem.
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		logger.Fatalf("Failed to parse templates: %v", err)
	}

	// 6. Set up the Gin router.
	if !cfg.LogVerbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHTTPHandler(lotteryService, hub, templates).RegisterRoutes(r)

	// 7. Start the background autosave.
	if cfg.AutosaveInterval > 0 {
		go autosave(ctx, clock, cfg.AutosaveInterval, lotteryService)
	}

	// 8. Run the server until interrupted.
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	go func() {
		logger.Infof("Server starting on http://%s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to run server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := lotteryService.Save(); err != nil {
		logger.Errorf("Final save failed: %v", err)
	}
}

func autosave(ctx context.Context, clock clockwork.Clock, every time.Duration, s *services.LotteryService) {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.Save(); err != nil {
				continue
			}
			logger.Info("Performed autosave")
		}
	}
}
