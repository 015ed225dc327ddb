package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_Level(t *testing.T) {
	log := New("prod", "warn", "api-server")
	if log.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", log.GetLevel())
	}

	log = New("prod", "nonsense", "api-server")
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %s", log.GetLevel())
	}
}
