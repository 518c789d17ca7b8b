package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/crew"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.LogLevel != "info" || cfg.Logbook != "ev3way.db" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SerialPort != "" || cfg.OTelEndpoint != "" {
		t.Errorf("optional links should default off: %+v", cfg)
	}
	if cfg.Crew != crew.DefaultConfig() {
		t.Errorf("crew defaults = %+v, want %+v", cfg.Crew, crew.DefaultConfig())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EV3WAY_HTTP_ADDR", ":9090")
	t.Setenv("EV3WAY_SERIAL_PORT", "/dev/rfcomm0")
	t.Setenv("EV3WAY_CREW_TAIL_GAIN", "3.5")
	t.Setenv("EV3WAY_CREW_GRACE_PERIOD", "250ms")
	t.Setenv("EV3WAY_CREW_LIGHT_WHITE", "52")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.SerialPort != "/dev/rfcomm0" {
		t.Errorf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.Crew.TailGain != 3.5 {
		t.Errorf("TailGain = %v, want 3.5", cfg.Crew.TailGain)
	}
	if cfg.Crew.GracePeriod != 250*time.Millisecond {
		t.Errorf("GracePeriod = %v, want 250ms", cfg.Crew.GracePeriod)
	}
	if cfg.Crew.LightWhite != 52 {
		t.Errorf("LightWhite = %d, want 52", cfg.Crew.LightWhite)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("EV3WAY_CREW_ALERT_DISTANCE", "far")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoad_InvalidCrew(t *testing.T) {
	t.Setenv("EV3WAY_CREW_DRIVE_PWM_MAX", "250")

	_, err := Load()
	if !errors.Is(err, crew.ErrInvalidConfig) {
		t.Fatalf("Load = %v, want ErrInvalidConfig", err)
	}
}
