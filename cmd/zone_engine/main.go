package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pda-zone/engine/internal/artifact"
	"github.com/pda-zone/engine/internal/capture"
	"github.com/pda-zone/engine/internal/config"
	"github.com/pda-zone/engine/internal/database"
	"github.com/pda-zone/engine/internal/history"
	"github.com/pda-zone/engine/internal/ingest"
	"github.com/pda-zone/engine/internal/logging"
	"github.com/pda-zone/engine/internal/questhook"
	"github.com/pda-zone/engine/internal/radiation"
	"github.com/pda-zone/engine/internal/store"
	"github.com/pda-zone/engine/internal/sweeper"
	"github.com/pda-zone/engine/internal/telemetry"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EngineVersion can be set at build time via ldflags.
var (
	EngineVersion string = "0.0.1"
	BuildDate     string = "unknown"

	EngineName string = "zone_engine"
)

var (
	Logger  zerolog.Logger
	LogFile *os.File

	dbManager     *database.Manager
	influxManager *telemetry.Manager
	metrics       *telemetry.Metrics

	gameStore     *store.Store
	questClient   *questhook.Client
	ingestService *ingest.Service
	artifactEng   *artifact.Engine
	captureEng    *capture.Engine
	historyWriter *history.Writer
	sweepService  *sweeper.Service

	sessionStartTime = time.Now()
)

func bootstrap() error {
	var err error

	Logger = logging.Setup(nil)

	if err = config.Load("."); err != nil {
		Logger.Warn().Err(err).Msg("Failed to load config, using defaults")
	} else {
		Logger.Info().Msg("Loaded config")
	}

	logName := fmt.Sprintf("%s.%s.log", EngineName, sessionStartTime.Format("20060102_150405"))
	LogFile, err = logging.OpenLogFile(logName)
	if err != nil {
		Logger.Error().Err(err).Str("name", logName).Msg("Failed to open log file")
	}
	Logger = logging.Setup(LogFile)

	dbManager = database.NewManager(Logger)
	if err = dbManager.Connect(); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err = dbManager.Setup(); err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}

	influxManager = telemetry.NewManager(Logger,
		viper.GetString("logsDir")+"/influx_backup.gz")
	if viper.GetBool("influx.enabled") {
		if err = influxManager.Connect(); err != nil {
			Logger.Warn().Err(err).Msg("InfluxDB unavailable, gameplay points go to the backup file")
		}
	}

	metrics, err = telemetry.NewMetrics()
	if err != nil {
		Logger.Warn().Err(err).Msg("Failed to create metric instruments")
	}

	gameStore = store.New(dbManager.DB)
	questClient = questhook.New(
		viper.GetString("quest.serverUrl"),
		viper.GetString("quest.apiKey"),
		Logger,
	)

	historyWriter = history.NewWriter(history.Dependencies{
		Store:  gameStore,
		Logger: Logger,
	}, 5*time.Second)

	artifactEng = artifact.NewEngine(artifact.Dependencies{
		Store:   gameStore,
		Logger:  Logger,
		Metrics: metrics,
		Influx:  influxManager,
		Quest:   questClient,
	}, artifact.Config{
		ExtractionDuration:   time.Duration(viper.GetInt("game.extractionDurationSec")) * time.Second,
		PickupRadius:         viper.GetFloat64("game.artifactPickupRadius"),
		PickupReputation:     viper.GetInt("game.pickupReputation"),
		SellReputationFactor: viper.GetFloat64("game.sellReputationFactor"),
		RespawnDelay:         time.Duration(viper.GetInt("game.respawnDelayMinutes")) * time.Minute,
		RespawnRadius:        viper.GetFloat64("game.respawnRadiusMeters"),
	})

	captureEng = capture.NewEngine(capture.Dependencies{
		Store:   gameStore,
		Logger:  Logger,
		Metrics: metrics,
		Influx:  influxManager,
	}, capture.Config{
		CaptureDuration: time.Duration(viper.GetInt("game.captureDurationSec")) * time.Second,
	})

	ingestService = ingest.NewService(ingest.Dependencies{
		Store:   gameStore,
		History: historyWriter,
		Influx:  influxManager,
		Metrics: metrics,
		Quest:   questClient,
		Logger:  Logger,
	}, ingest.Config{
		DetectionRadius:        viper.GetFloat64("game.artifactDetectionRadius"),
		PickupRadius:           viper.GetFloat64("game.artifactPickupRadius"),
		ControlPointVisibility: viper.GetFloat64("game.controlPointVisibilityRadius"),
	})

	// The radiation engine reads zones through the ingest service's versioned
	// cache, so it is wired after the service exists.
	ingestService.SetRadiation(radiation.NewEngine(radiation.Dependencies{
		Zones:   ingestService.HazardZones,
		Logger:  Logger,
		Metrics: metrics,
		Influx:  influxManager,
	}, radiation.Config{
		MaxRadiation:    viper.GetFloat64("game.maxRadiation"),
		ResistCap:       viper.GetFloat64("game.radiationResistCap"),
		DoseDivisor:     viper.GetFloat64("game.radiationDoseDivisor"),
		OfflineSpeedMps: viper.GetFloat64("game.offlineSpeedMps"),
	}))

	sweepService = sweeper.NewService(sweeper.Dependencies{
		Artifacts: artifactEng,
		Logger:    Logger,
	}, time.Duration(viper.GetInt("game.respawnSweepIntervalSec"))*time.Second)

	return nil
}

func checkQuestServerStatus() {
	if err := questClient.Healthcheck(); err != nil {
		Logger.Info().Msg("Quest server is offline")
	} else {
		Logger.Info().Msg("Quest server is online")
	}
}

func run() error {
	historyWriter.Start()
	sweepService.Start()
	go checkQuestServerStatus()

	Logger.Info().
		Str("version", EngineVersion).
		Str("buildDate", BuildDate).
		Msg("Engine running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	Logger.Info().Msg("Shutting down")
	sweepService.Stop()
	historyWriter.Stop()
	influxManager.Close()

	// give the writers a moment to drain
	time.Sleep(time.Second)
	return nil
}

func main() {
	if err := bootstrap(); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		if err := run(); err != nil {
			Logger.Fatal().Err(err).Msg("Engine exited with error")
		}
		return
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "setupdb":
		// bootstrap already migrated; nothing further to do
		Logger.Info().Msg("DB setup complete")
	case "sweep":
		var n int
		n, err = sweepService.RunOnce(context.Background())
		if err == nil {
			Logger.Info().Int("activated", n).Msg("Sweep complete")
		}
	case "seed":
		err = seedDemoWorld()
		if err == nil {
			Logger.Info().Msg("Demo world seeded")
		}
	case "version":
		fmt.Println(EngineVersion, BuildDate)
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		Logger.Fatal().Err(err).Str("command", args[0]).Msg("Command failed")
	}
}
