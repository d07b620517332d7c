package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	_ "github.com/julius090/fusion-thermostat/docs"
	"github.com/julius090/fusion-thermostat/internal/climate"
	"github.com/julius090/fusion-thermostat/internal/handlers"
	"github.com/julius090/fusion-thermostat/internal/hass"
	"github.com/julius090/fusion-thermostat/internal/logger"
	"github.com/julius090/fusion-thermostat/internal/repository"
	"github.com/julius090/fusion-thermostat/internal/repository/db"
	"github.com/julius090/fusion-thermostat/internal/server"
	"github.com/julius090/fusion-thermostat/internal/service"
)

// @title           Fusion Thermostat API
// @version         1.0
// @description     Virtualizes one logical thermostat over a pool of real thermostat devices.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// load config.yml first so the log level comes from it
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// open DB
	sqlDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqlDB)

	// Home Assistant bridge: transport for downstream commands and source of
	// state_changed events.
	haClient := hass.NewClient(hass.Config{
		URL:               viper.GetString("hass.url"),
		Token:             viper.GetString("hass.token"),
		TemperatureSensor: viper.GetString("thermostat.target_sensor"),
		WindowSensor:      viper.GetString("thermostat.windows_sensor"),
		Devices:           viper.GetStringSlice("thermostat.real_thermostats"),
	}, log)

	dispatcher := climate.NewDispatcher(haClient, log)
	coordinator := climate.NewCoordinator(coordinatorConfig(), dispatcher, climate.NewTimerScheduler(), repos.StateRepo, repos.EventRepo, log)
	defer coordinator.Close()
	haClient.SetSink(coordinator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coordinator.Restore(ctx); err != nil {
		log.Errorw("failed to restore persisted state", "err", err)
	}

	// wire services and HTTP layer
	services := service.NewService(coordinator, repos, viper.GetString("auth.signing_key"))
	apiHandler := handlers.NewHandler(services, log)
	coordinator.SetBroadcast(apiHandler.Broadcast)

	// connect to the backend and serve events
	go func() {
		if err := haClient.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("hass bridge stopped", "err", err)
		}
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// coordinatorConfig maps the thermostat section of the config file onto the
// coordinator's settings, applying defaults where values are absent.
func coordinatorConfig() climate.Config {
	viper.SetDefault("thermostat.window_delay", "10s")
	viper.SetDefault("thermostat.cold_tolerance", 0.5)
	viper.SetDefault("thermostat.hot_tolerance", 0.5)
	viper.SetDefault("thermostat.min_temp", 7.0)
	viper.SetDefault("thermostat.max_temp", 25.0)

	return climate.Config{
		Name:              viper.GetString("thermostat.name"),
		TemperatureSensor: viper.GetString("thermostat.target_sensor"),
		RealThermostats:   viper.GetStringSlice("thermostat.real_thermostats"),
		WindowSensor:      viper.GetString("thermostat.windows_sensor"),
		WindowDelay:       viper.GetDuration("thermostat.window_delay"),
		MinTempC:          viper.GetFloat64("thermostat.min_temp"),
		MaxTempC:          viper.GetFloat64("thermostat.max_temp"),
		ColdTolerance:     viper.GetFloat64("thermostat.cold_tolerance"),
		HotTolerance:      viper.GetFloat64("thermostat.hot_tolerance"),
	}
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "thermostat.db")
		dbPath = "thermostat.db"
	}
	return db.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
