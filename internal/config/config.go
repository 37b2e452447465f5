package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "GUESSDUEL"

type Config struct {
	Bind             string
	Port             int
	DatabaseURL      string
	ImagesFile       string
	RevealDelay      time.Duration
	RoomCloseTimeout time.Duration
	StaleRoomTTL     time.Duration
	StatsInterval    time.Duration
	TimeBonus        bool
	PublicURL        string
	Origins          []string
	LogLevel         string
	Dev              bool
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.RevealDelay < 0 {
		return errors.New("--reveal-delay must not be negative")
	}
	if c.RoomCloseTimeout < 0 || c.StaleRoomTTL < 0 || c.StatsInterval < 0 {
		return errors.New("timeouts and intervals must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	return nil
}

// RegisterFlags defines every setting on fs, with defaults, and binds them to
// GUESSDUEL_* environment variables. Call Apply after parsing.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: GUESSDUEL_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: GUESSDUEL_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection string (env: GUESSDUEL_DATABASE_URL)")
	fs.StringVar(&cfg.ImagesFile, "images-file", "", "YAML or JSON image catalogue used without a database (env: GUESSDUEL_IMAGES_FILE)")
	fs.DurationVar(&cfg.RevealDelay, "reveal-delay", 5*time.Second, "pause between round reveal and the next round (env: GUESSDUEL_REVEAL_DELAY)")
	fs.DurationVar(&cfg.RoomCloseTimeout, "room-close-timeout", 10*time.Minute, "time a finished match stays open for a rematch (env: GUESSDUEL_ROOM_CLOSE_TIMEOUT)")
	fs.DurationVar(&cfg.StaleRoomTTL, "stale-room-ttl", time.Hour, "age after which any match is swept (env: GUESSDUEL_STALE_ROOM_TTL)")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", 30*time.Second, "periodic player stats broadcast, 0 to disable (env: GUESSDUEL_STATS_INTERVAL)")
	fs.BoolVar(&cfg.TimeBonus, "time-bonus", false, "award the first-submitter bonus in timed matches (env: GUESSDUEL_TIME_BONUS)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL for spectate links (env: GUESSDUEL_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.Origins, "origin", nil, "additional websocket origin patterns (env: GUESSDUEL_ORIGIN)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level (env: GUESSDUEL_LOG_LEVEL)")
	fs.BoolVar(&cfg.Dev, "dev", false, "human-readable development logging (env: GUESSDUEL_DEV)")
}

// Apply fills every flag not set on the command line from the environment.
func Apply(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("reading %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}
