package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
		"warn":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"error": zap.NewAtomicLevelAt(zap.ErrorLevel),
		"bogus": zap.NewAtomicLevelAt(zap.InfoLevel),
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			l := New("production", name)
			assert.True(t, l.Core().Enabled(want.Level()))
			if want.Level() > zap.DebugLevel {
				assert.False(t, l.Core().Enabled(want.Level()-1))
			}
		})
	}
}

func TestNew_DevelopmentEncoder(t *testing.T) {
	l := New("dev", "info")
	assert.NotNil(t, l)
	l.Info("logger smoke test", zap.String("component", "test"))
}
