package core

// Config holds the tunables the core consumes. A superset of keys may be
// passed to Configure; unrecognized keys are ignored.
type Config struct {
	// RequestFreelistLimit bounds the number of recycled Request objects
	// held for reuse.
	RequestFreelistLimit int

	// BodyWatermark is the default backpressure threshold handed to each
	// request's body channel.
	BodyWatermark int
}

// DefaultConfig returns the core's default tunables.
func DefaultConfig() Config {
	return Config{
		RequestFreelistLimit: 1024,
		BodyWatermark:        256 * 1024,
	}
}

// Configure applies recognized keys from a generic options map, leaving
// anything unset at its current value. This mirrors the teacher's plain
// struct-based configuration (no viper/flag layer — see SPEC_FULL.md E.2).
func (c *Config) Configure(opts map[string]any) {
	if v, ok := opts["request_freelist_limit"]; ok {
		if n, ok := asInt(v); ok {
			c.RequestFreelistLimit = n
		}
	}
	if v, ok := opts["body_watermark"]; ok {
		if n, ok := asInt(v); ok {
			c.BodyWatermark = n
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
