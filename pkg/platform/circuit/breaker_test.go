package circuit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// carrierStub stands in for the rate upstream the quoter guards with a
// breaker: it answers or fails on script, and quoteVia routes around it the
// way the quoter does.
type carrierStub struct {
	failing bool
	calls   int
}

func (c *carrierStub) getRates() error {
	c.calls++
	if c.failing {
		return errors.New("carrier 503")
	}
	return nil
}

// quoteVia is the caller-side protocol under test: record each outcome, serve
// fallback whenever the breaker says so.
func quoteVia(b *Breaker, carrier *carrierStub) (source string, change Change) {
	if err := carrier.getRates(); err != nil {
		useFallback, ch := b.RecordFailure()
		if useFallback {
			return "fallback", ch
		}
		return "error", ch
	}
	usePrimary, ch := b.RecordSuccess()
	if !usePrimary {
		return "fallback", ch
	}
	return "live", ch
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("carrier-rates")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "carrier-rates", b.Name())
}

func TestBreakerOpensAfterConsecutiveCarrierFailures(t *testing.T) {
	b := New("carrier-rates", WithFailureThreshold(3))
	carrier := &carrierStub{failing: true}

	// Below the threshold the caller still surfaces the error.
	for i := 0; i < 2; i++ {
		source, change := quoteVia(b, carrier)
		assert.Equal(t, "error", source)
		assert.False(t, change.Opened)
	}

	source, change := quoteVia(b, carrier)
	assert.Equal(t, "fallback", source)
	assert.True(t, change.Opened, "the threshold failure reports the transition exactly once")
	require.True(t, b.IsOpen())

	// Open circuit keeps serving fallback without another transition report.
	source, change = quoteVia(b, carrier)
	assert.Equal(t, "fallback", source)
	assert.False(t, change.Opened)
}

func TestBreakerClosesAfterRecoveryStreak(t *testing.T) {
	b := New("carrier-rates", WithFailureThreshold(1), WithSuccessThreshold(2))
	carrier := &carrierStub{failing: true}

	quoteVia(b, carrier)
	require.True(t, b.IsOpen())

	carrier.failing = false

	// The first healthy probe is not trusted yet; its rates stay unserved.
	source, change := quoteVia(b, carrier)
	assert.Equal(t, "fallback", source)
	assert.False(t, change.Closed)
	assert.True(t, b.IsOpen())

	source, change = quoteVia(b, carrier)
	assert.Equal(t, "live", source)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerHealthyTrafficClearsFailureStreak(t *testing.T) {
	b := New("carrier-rates", WithFailureThreshold(3))
	carrier := &carrierStub{failing: true}

	quoteVia(b, carrier)
	quoteVia(b, carrier)
	require.False(t, b.IsOpen())

	carrier.failing = false
	quoteVia(b, carrier)

	// The streak restarted; two more failures must not reach the threshold.
	carrier.failing = true
	quoteVia(b, carrier)
	quoteVia(b, carrier)
	assert.False(t, b.IsOpen())

	quoteVia(b, carrier)
	assert.True(t, b.IsOpen())
}

func TestBreakerFlappingUpstreamStaysOpen(t *testing.T) {
	b := New("carrier-rates", WithFailureThreshold(1), WithSuccessThreshold(3))
	carrier := &carrierStub{failing: true}

	quoteVia(b, carrier)
	require.True(t, b.IsOpen())

	// Two good probes, then a failure: the recovery streak resets and the
	// flapping carrier never gets live traffic back.
	carrier.failing = false
	quoteVia(b, carrier)
	quoteVia(b, carrier)
	carrier.failing = true
	quoteVia(b, carrier)
	assert.True(t, b.IsOpen())

	carrier.failing = false
	quoteVia(b, carrier)
	quoteVia(b, carrier)
	assert.True(t, b.IsOpen())
	source, _ := quoteVia(b, carrier)
	assert.Equal(t, "live", source)
	assert.False(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("carrier-rates", WithFailureThreshold(1))
	carrier := &carrierStub{failing: true}

	quoteVia(b, carrier)
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())

	carrier.failing = false
	source, _ := quoteVia(b, carrier)
	assert.Equal(t, "live", source)
}
