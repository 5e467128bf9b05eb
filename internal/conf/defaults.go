// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "SynergyFlow")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "synergyflow.log")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "synergyflow.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "synergyflow")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "synergyflow")

	viper.SetDefault("mirroring.workers", 4)
	viper.SetDefault("mirroring.buffersize", 10000)

	viper.SetDefault("client.baseurl", "http://localhost:8080")
	viper.SetDefault("client.retries", 2)
	viper.SetDefault("client.retrydelaybase", 200*time.Millisecond)
	viper.SetDefault("client.timeout", 30*time.Second)
}

// DefaultConfigPaths returns the locations searched for config.yaml,
// in priority order.
func DefaultConfigPaths() []string {
	return []string{
		".",
		"$HOME/.config/synergyflow",
		"/etc/synergyflow",
	}
}
