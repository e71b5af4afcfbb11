package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Viper keys. Each is also readable from the environment as LINKSHELF_<KEY>.
const (
	KeyDB              = "db"
	KeyConfigFile      = "config"
	KeyHost            = "host"
	KeyPort            = "port"
	KeySecretKey       = "secret_key"
	KeySnapshotWorkers = "snapshot_workers"
	KeyChromePath      = "chrome_path"
	KeyLogLevel        = "log_level"

	// KeyAllowPrivateHosts lets snapshots capture loopback, private and
	// link-local addresses. Leave it off when users are not trusted.
	KeyAllowPrivateHosts = "allow_private_hosts"
)

const EnvPrefix = "LINKSHELF"

// Config holds the settings of a linkshelf process.
type Config struct {
	DBPath          string
	Host            string
	Port            int
	SecretKey       string
	SnapshotWorkers int
	ChromePath      string
	LogLevel        string

	AllowPrivateHosts bool

	// EphemeralSecret is set when no secret was configured and SecretKey was
	// generated for this process only. Sessions do not survive a restart.
	EphemeralSecret bool
}

// NewViper returns a viper instance with linkshelf defaults and environment
// lookup enabled. Flags are bound to it by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDB, "linkshelf.db")
	v.SetDefault(KeyHost, "localhost")
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeySecretKey, "")
	v.SetDefault(KeySnapshotWorkers, 1)
	v.SetDefault(KeyChromePath, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAllowPrivateHosts, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file named by the "config" key and returns
// the resulting Config. Flags and environment variables take precedence over
// the file.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		DBPath:          v.GetString(KeyDB),
		Host:            v.GetString(KeyHost),
		Port:            v.GetInt(KeyPort),
		SecretKey:       v.GetString(KeySecretKey),
		SnapshotWorkers: v.GetInt(KeySnapshotWorkers),
		ChromePath:      v.GetString(KeyChromePath),
		LogLevel:        v.GetString(KeyLogLevel),

		AllowPrivateHosts: v.GetBool(KeyAllowPrivateHosts),
	}

	if cfg.SecretKey == "" {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.SecretKey = secret
		cfg.EphemeralSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("database path must not be empty")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.SnapshotWorkers < 0:
		return fmt.Errorf("snapshot workers must not be negative, got %d", c.SnapshotWorkers)
	case c.SecretKey == "":
		return errors.New("secret key must not be empty")
	}
	return nil
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
