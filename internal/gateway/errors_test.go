package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	retry := []Kind{KindRateLimited, KindNetwork, KindServerError}
	terminal := []Kind{KindValidation, KindRenderError, KindProviderError}
	for _, k := range retry {
		assert.Truef(t, Errf(k, "x").Retryable(), "%s", k)
	}
	for _, k := range terminal {
		assert.Falsef(t, Errf(k, "x").Retryable(), "%s", k)
	}
}

func TestAsErrorUnwrapsTyped(t *testing.T) {
	inner := Errf(KindValidation, "bad spec")
	wrapped := fmt.Errorf("step failed: %w", inner)
	got := AsError(wrapped)
	assert.Equal(t, KindValidation, got.Kind)
	assert.Equal(t, "bad spec", got.Message)
}

func TestAsErrorDefaultsToNetwork(t *testing.T) {
	got := AsError(errors.New("connection reset"))
	assert.Equal(t, KindNetwork, got.Kind)
	assert.True(t, got.Retryable())
}
