package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the archive's layout and the pipelines' tunable knobs.
// Load from environment; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// DataDir is the archive root; everything else is relative to it unless
	// overridden. Defaults to the current working directory (spec §5
	// "Environment": "default is the current working directory if the
	// layout is not found alongside the binary").
	DataDir string

	PostsPath   string // <data_dir>/posts.json by default
	CursorsPath string // <data_dir>/sync_state.json by default
	MediaRoot   string // <data_dir>/media by default

	SubscriptionFile string // browser cookie source hint, analogous to the teacher's subscription file

	// Enricher / Bootstrap defaults.
	Delay     time.Duration
	SaveEvery int
	PoolSize  int // media download worker pool size

	// Extractor defaults.
	FrameIntervalSecs int

	// Cooldown policy values read from the environment. The Enricher does
	// not consult these fields; it uses its own package constants
	// (enricher.CooldownEvery, CooldownSecs, RateLimitSleep,
	// MaxConsecutiveFailures), so changing them has no effect on a run.
	CooldownEvery          int
	CooldownSecs           time.Duration
	RateLimitSleep         time.Duration
	MaxConsecutiveFailures int
}

// Load reads Config from the environment, applying the spec's documented
// defaults for anything unset.
func Load() *Config {
	cwd, _ := os.Getwd()
	dataDir := getEnv("SOCMED_DATA_DIR", cwd)

	c := &Config{
		DataDir:                dataDir,
		PostsPath:              getEnv("SOCMED_POSTS_PATH", filepath.Join(dataDir, "posts.json")),
		CursorsPath:            getEnv("SOCMED_CURSORS_PATH", filepath.Join(dataDir, "sync_state.json")),
		MediaRoot:              getEnv("SOCMED_MEDIA_ROOT", filepath.Join(dataDir, "media")),
		SubscriptionFile:       os.Getenv("SOCMED_COOKIE_FILE"),
		Delay:                  getEnvDuration("SOCMED_DELAY", 3*time.Second),
		SaveEvery:              getEnvInt("SOCMED_SAVE_EVERY", 20),
		PoolSize:               getEnvInt("SOCMED_MEDIA_WORKERS", 4),
		FrameIntervalSecs:      getEnvInt("SOCMED_FRAME_INTERVAL_SECS", 3),
		CooldownEvery:          getEnvInt("SOCMED_COOLDOWN_EVERY", 600),
		CooldownSecs:           getEnvDuration("SOCMED_COOLDOWN_SECS", 120*time.Second),
		RateLimitSleep:         getEnvDuration("SOCMED_RATE_LIMIT_SLEEP", 60*time.Second),
		MaxConsecutiveFailures: getEnvInt("SOCMED_MAX_CONSECUTIVE_FAILURES", 10),
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = 20
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.FrameIntervalSecs <= 0 {
		c.FrameIntervalSecs = 3
	}
	if c.CooldownEvery <= 0 {
		c.CooldownEvery = 600
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 10
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds, matching the spec's `--delay S` flag shape.
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}
