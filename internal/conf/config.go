// Package conf handles SynergyFlow configuration loading and validation.
package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/monosense-io/synergyflow/internal/errors"
)

// Settings is the root configuration for the application.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug level logging

	Version   string `yaml:"-"` // release version, set at build time
	BuildDate string `yaml:"-"`

	Main      MainSettings      `yaml:"main"`
	WebServer WebServerSettings `yaml:"webserver"`
	Output    OutputSettings    `yaml:"output"`
	Mirroring MirroringSettings `yaml:"mirroring"`
	Client    ClientSettings    `yaml:"client"`
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    `yaml:"name"` // application instance name
	Log  LogConfig `yaml:"log"`
}

// LogConfig defines file logging behavior.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebServerSettings contains the REST API server settings.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Debug   bool   `yaml:"debug"`
}

// OutputSettings selects and configures the backing database.
type OutputSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

// SQLiteSettings contains SQLite database settings.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings contains MySQL database settings.
type MySQLSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// MirroringSettings tunes the asynchronous mirroring propagator.
type MirroringSettings struct {
	Workers    int `yaml:"workers"`    // event bus worker goroutines
	BufferSize int `yaml:"buffersize"` // event channel capacity
}

// ClientSettings configures the outbound transport client used by the
// submit command and any service-to-service calls.
type ClientSettings struct {
	BaseURL        string        `yaml:"baseurl"`
	Retries        int           `yaml:"retries"`
	RetryDelayBase time.Duration `yaml:"retrydelaybase"`
	Timeout        time.Duration `yaml:"timeout"`
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range DefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("SYNERGYFLOW")
	viper.AutomaticEnv()

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover everything
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return GetSettings()
}
