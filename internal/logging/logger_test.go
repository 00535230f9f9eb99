package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		level string
		env   string
		want  zap.AtomicLevel
	}{
		{"debug", "dev", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"WARN", "prod", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"nonsense", "dev", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}
	for _, tt := range tests {
		l, err := Init(tt.level, tt.env)
		if err != nil {
			t.Fatalf("Init(%q, %q) error = %v", tt.level, tt.env, err)
		}
		if l.Level.Level() != tt.want.Level() {
			t.Errorf("Init(%q) level = %v, want %v", tt.level, l.Level.Level(), tt.want.Level())
		}
		if l.Base == nil || l.Sugar == nil {
			t.Fatal("expected loggers to be set")
		}
		l.Closer()
	}
}
