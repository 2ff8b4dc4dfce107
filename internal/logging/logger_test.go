package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"", "development", "production"} {
		t.Run("env="+env, func(t *testing.T) {
			logger, err := New(Config{Environment: env, Level: "debug", ServiceName: "fieldledger"})
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestContextRoundTrip(t *testing.T) {
	base := zap.NewNop()
	scoped := base.With(zap.String("request_id", "abc"))

	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, base))
	assert.Same(t, base, FromContext(context.Background(), base))
	assert.NotNil(t, FromContext(context.Background(), nil))
}
