package simcore

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("env defaults differ from DefaultConfig:\n%+v\n%+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{
		"SIMCORE_GRAVITY":            " 0, -1.62 ,0",
		"SIMCORE_TRIGGER_INTERVAL":   "1s",
		"SIMCORE_CONTACT_RAY_LENGTH": "20",
		"SIMCORE_DEBUG_CONTACTS":     "true",
		"SIMCORE_MAIN_OBJECT":        "hero",
		"SIMCORE_FIXED_STEP":         "8ms",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gravity != (mgl64.Vec3{0, -1.62, 0}) {
		t.Errorf("unexpected gravity %v", cfg.Gravity)
	}
	if cfg.TriggerInterval != time.Second || cfg.ContactRayLength != 20 || !cfg.DebugContacts {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MainObjectName != "hero" || cfg.FixedStep != 8*time.Millisecond {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"gravity":    {"SIMCORE_GRAVITY": "0,1"},
		"duration":   {"SIMCORE_TRIGGER_INTERVAL": "soon"},
		"ray":        {"SIMCORE_CONTACT_RAY_LENGTH": "0"},
		"fixed step": {"SIMCORE_FIXED_STEP": "-1ms"},
		"queue":      {"SIMCORE_RENDER_QUEUE_DEPTH": "-4"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfigFrom(environ); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParseVec3(t *testing.T) {
	v, err := ParseVec3("1, 2.5,-3")
	if err != nil || v != (mgl64.Vec3{1, 2.5, -3}) {
		t.Errorf("got %v, %v", v, err)
	}
	for _, s := range []string{"", "1,2", "1,2,3,4", "a,b,c"} {
		if _, err := ParseVec3(s); err == nil {
			t.Errorf("expected an error for %q", s)
		}
	}
}
