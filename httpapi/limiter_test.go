package httpapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/isdmx/runbox/config"
)

func TestLimiter(t *testing.T) {
	t.Run("ZeroDisablesEverything", func(t *testing.T) {
		l := NewLimiter(config.RateLimitConfig{})
		for range 100 {
			assert.Empty(t, l.Allow("1.2.3.4"))
		}
	})

	t.Run("GlobalBucket", func(t *testing.T) {
		l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

		for range 2 {
			assert.Empty(t, l.Allow("a"))
		}
		assert.Equal(t, ReasonGlobal, l.Allow("b"))
	})

	t.Run("ClientsAreIndependent", func(t *testing.T) {
		l := NewLimiter(config.RateLimitConfig{PerClientRPS: 0.001, PerClientBurst: 1})

		assert.Empty(t, l.Allow("a"))
		assert.Equal(t, ReasonClient, l.Allow("a"))
		assert.Empty(t, l.Allow("b"))
	})

	t.Run("MaxConcurrentIsNotAGatewayLimit", func(t *testing.T) {
		l := NewLimiter(config.RateLimitConfig{MaxConcurrent: 1})

		for range 10 {
			assert.Empty(t, l.Allow("a"))
		}
	})

	t.Run("IdleClientsArePruned", func(t *testing.T) {
		l := NewLimiter(config.RateLimitConfig{PerClientRPS: 100, PerClientBurst: 100})
		now := time.Now()
		l.now = func() time.Time { return now }

		for i := range clientPruneTrigger {
			assert.Empty(t, l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
		}
		assert.Len(t, l.clients, clientPruneTrigger)

		now = now.Add(2 * clientIdleTTL)
		assert.Empty(t, l.Allow("192.168.0.1"))
		assert.Len(t, l.clients, 1)
	})
}
