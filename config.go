package simcore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"
	"github.com/go-gl/mathgl/mgl64"
)

// Config holds the tunables of a Registry. Values are read from SIMCORE_*
// environment variables by LoadConfig.
type Config struct {
	// Gravity is the standard gravity applied to every dynamic body without a
	// per-body override.
	Gravity mgl64.Vec3 `env:"SIMCORE_GRAVITY" envDefault:"0,-9.81,0"`

	// TriggerInterval throttles area-trigger evaluation.
	TriggerInterval time.Duration `env:"SIMCORE_TRIGGER_INTERVAL" envDefault:"250ms"`

	// ContactRayLength is the length of contact query rays.
	ContactRayLength float64 `env:"SIMCORE_CONTACT_RAY_LENGTH" envDefault:"500"`

	// GravitySourceStrength is the acceleration toward a gravity source when the
	// body does not set its own.
	GravitySourceStrength float64 `env:"SIMCORE_GRAVITY_SOURCE_STRENGTH" envDefault:"9.81"`

	// DebugContacts draws a debug line for every contact query.
	DebugContacts bool `env:"SIMCORE_DEBUG_CONTACTS" envDefault:"false"`

	// RenderQueueDepth is the buffer of a RenderThread.
	RenderQueueDepth int `env:"SIMCORE_RENDER_QUEUE_DEPTH" envDefault:"64"`

	// MainObjectName names the object connected last by Start.
	MainObjectName string `env:"SIMCORE_MAIN_OBJECT"`

	// FixedStep is the solver step used by drivers such as cmd/simdemo.
	FixedStep time.Duration `env:"SIMCORE_FIXED_STEP" envDefault:"16ms"`
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		Gravity:               mgl64.Vec3{0, -9.81, 0},
		TriggerInterval:       250 * time.Millisecond,
		ContactRayLength:      500,
		GravitySourceStrength: 9.81,
		RenderQueueDepth:      64,
		FixedStep:             16 * time.Millisecond,
	}
}

// LoadConfig parses the configuration from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(envparse.Options{})
}

// LoadConfigFrom parses the configuration from the given variables only.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(envparse.Options{Environment: environ})
}

func parseConfig(opts envparse.Options) (Config, error) {
	opts.FuncMap = map[reflect.Type]envparse.ParserFunc{
		reflect.TypeOf(mgl64.Vec3{}): func(v string) (interface{}, error) {
			return ParseVec3(v)
		},
	}

	var cfg Config
	if err := envparse.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, wrapError(CodeInvalidConfig, "simcore: parse env", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.TriggerInterval < 0:
		return withMetadata(CodeInvalidConfig, "simcore: negative trigger interval",
			map[string]string{"field": "TriggerInterval"})
	case c.ContactRayLength <= 0:
		return withMetadata(CodeInvalidConfig, "simcore: contact ray length must be positive",
			map[string]string{"field": "ContactRayLength"})
	case c.RenderQueueDepth < 0:
		return withMetadata(CodeInvalidConfig, "simcore: negative render queue depth",
			map[string]string{"field": "RenderQueueDepth"})
	case c.FixedStep <= 0:
		return withMetadata(CodeInvalidConfig, "simcore: fixed step must be positive",
			map[string]string{"field": "FixedStep"})
	}
	return nil
}

// ParseVec3 parses "x,y,z" (spaces allowed) into a vector.
func ParseVec3(s string) (mgl64.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("vec3 %q: want 3 components, got %d", s, len(parts))
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("vec3 %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}
