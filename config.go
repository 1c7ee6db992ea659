package coro

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	yaml "github.com/goccy/go-yaml"

	"github.com/coro-project/coro/core"
)

// Config holds the tunables the runtime reads at startup.
type Config struct {
	Workers int `yaml:"workers"`

	// QueueCapacity seeds the runnable queue's backing slice. Zero means
	// core.RuntimeConfig's own default.
	QueueCapacity int `yaml:"queue_capacity"`

	// SleepGranularityMS, if positive, switches the sleep service to
	// fixed-interval polling instead of a precise per-entry timer; see
	// core.RuntimeConfig.SleepGranularity.
	SleepGranularityMS int `yaml:"sleep_granularity_ms"`
}

func defaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// LoadConfig builds a Config from an optional COROCONFIG YAML file,
// overridden by COMAXPROCS if set. A missing or unreadable COROCONFIG file
// is silently ignored, matching the fall-through-to-defaults behavior the
// rest of the pack's config loaders use; COMAXPROCS always wins over any
// file-provided worker count since it is the more specific, more recently
// set override. COMAXPROCS set to something unparseable is a startup-time
// configuration error, not something to silently fall back from, and
// panics — matching core.Global's treatment of the same variable.
func LoadConfig() Config {
	cfg := defaultConfig()

	if path := os.Getenv("COROCONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	if env := os.Getenv("COMAXPROCS"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil {
			panic(fmt.Errorf("coro: failed to parse COMAXPROCS: %w", err))
		}
		cfg.Workers = n
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	return cfg
}

var (
	globalOnce sync.Once
	global     *Runtime
)

// globalRuntime returns the process-wide Runtime, lazily built from
// LoadConfig on first use. This is the runtimeFor fallback used by every
// package-level Run/RunWithResult/NewChannel/NewBufferedChannel call made
// outside of a task body.
func globalRuntime() *Runtime {
	globalOnce.Do(func() {
		cfg := LoadConfig()
		rtConfig := core.DefaultRuntimeConfig()
		if cfg.QueueCapacity > 0 {
			rtConfig.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.SleepGranularityMS > 0 {
			rtConfig.SleepGranularity = time.Duration(cfg.SleepGranularityMS) * time.Millisecond
		}
		global = core.NewRuntime(cfg.Workers, rtConfig)
	})
	return global
}
