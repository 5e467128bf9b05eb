package conf

import (
	"fmt"
	"strconv"
)

// ValidateSettings checks the loaded settings for configuration errors
// that would prevent the application from starting.
func ValidateSettings(settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("settings is nil")
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		return err
	}
	if err := validateOutputSettings(&settings.Output); err != nil {
		return err
	}
	if err := validateMirroringSettings(&settings.Mirroring); err != nil {
		return err
	}
	return validateClientSettings(&settings.Client)
}

func validateWebServerSettings(ws *WebServerSettings) error {
	if !ws.Enabled {
		return nil
	}
	port, err := strconv.Atoi(ws.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid webserver port: %s", ws.Port)
	}
	return nil
}

func validateOutputSettings(out *OutputSettings) error {
	if !out.SQLite.Enabled && !out.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable sqlite or mysql")
	}
	if out.SQLite.Enabled && out.SQLite.Path == "" {
		return fmt.Errorf("sqlite enabled but no path configured")
	}
	if out.MySQL.Enabled {
		if out.MySQL.Host == "" || out.MySQL.Database == "" {
			return fmt.Errorf("mysql enabled but host or database missing")
		}
	}
	return nil
}

func validateMirroringSettings(m *MirroringSettings) error {
	if m.Workers < 1 {
		return fmt.Errorf("mirroring workers must be at least 1, got %d", m.Workers)
	}
	if m.BufferSize < 1 {
		return fmt.Errorf("mirroring buffer size must be at least 1, got %d", m.BufferSize)
	}
	return nil
}

func validateClientSettings(c *ClientSettings) error {
	if c.Retries < 0 {
		return fmt.Errorf("client retries must not be negative, got %d", c.Retries)
	}
	if c.RetryDelayBase < 0 {
		return fmt.Errorf("client retry delay base must not be negative, got %s", c.RetryDelayBase)
	}
	return nil
}
