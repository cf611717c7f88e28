package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./zonelogs")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "pdazone")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "pda-zone")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("quest.serverUrl", "")
	viper.SetDefault("quest.apiKey", "")

	// Gameplay tuning. Radii and buffers are meters, durations are seconds
	// unless the key says otherwise.
	viper.SetDefault("game.maxRadiation", 100.0)
	viper.SetDefault("game.radiationResistCap", 80.0)
	viper.SetDefault("game.radiationDoseDivisor", 300.0)
	viper.SetDefault("game.offlineSpeedMps", 1.0)
	viper.SetDefault("game.extractionDurationSec", 30)
	viper.SetDefault("game.captureDurationSec", 30)
	viper.SetDefault("game.artifactDetectionRadius", 15.0)
	viper.SetDefault("game.artifactPickupRadius", 2.0)
	viper.SetDefault("game.controlPointVisibilityRadius", 50.0)
	viper.SetDefault("game.respawnDelayMinutes", 30)
	viper.SetDefault("game.respawnRadiusMeters", 50.0)
	viper.SetDefault("game.respawnSweepIntervalSec", 60)
	viper.SetDefault("game.pickupReputation", 5)
	viper.SetDefault("game.sellReputationFactor", 0.3)

	viper.SetConfigName("zone_engine.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat64 returns a float64 config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
