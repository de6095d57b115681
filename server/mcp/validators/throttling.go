package validators

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/graphmem/graphmem/shared"
)

// Throttling limits the rate of messages per session using RPS (requests per
// second) and RPM (requests per minute) limiters.
type Throttling struct {
	defaultRPM int
	defaultRPS int
	mu         sync.RWMutex
}

// Session parameter keys used by the throttling validator.
const (
	RPMParamKey      = "throttling_rpm"
	RPSParamKey      = "throttling_rps"
	LimitersParamKey = "throttling_limiters"
)

// limiterPair holds the RPS and RPM limiters for a session.
type limiterPair struct {
	rpsLimiter *rate.Limiter
	rpmLimiter *rate.Limiter
}

// NewThrottling creates a new throttling validator.
func NewThrottling(defaultRPS, defaultRPM int) *Throttling {
	return &Throttling{
		defaultRPM: defaultRPM,
		defaultRPS: defaultRPS,
	}
}

// getLimiters gets or creates rate limiters for a session.
func (t *Throttling) getLimiters(session shared.ISession) *limiterPair {
	sessionParams := session.GetParams()

	t.mu.RLock()
	rpm := t.defaultRPM
	rps := t.defaultRPS
	t.mu.RUnlock()

	if rpmValue, ok := sessionParams.Load(RPMParamKey); ok {
		if rpmInt, ok := rpmValue.(int); ok && rpmInt > 0 {
			rpm = rpmInt
		}
	}
	if rpsValue, ok := sessionParams.Load(RPSParamKey); ok {
		if rpsInt, ok := rpsValue.(int); ok && rpsInt > 0 {
			rps = rpsInt
		}
	}

	value, ok := sessionParams.Load(LimitersParamKey)
	pair, ok2 := value.(*limiterPair)
	if ok && ok2 && pair != nil {
		return pair
	}

	pair = &limiterPair{
		rpmLimiter: rate.NewLimiter(rate.Limit(rpm)/60.0, rpm),
		rpsLimiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	sessionParams.Store(LimitersParamKey, pair)
	return pair
}

// Validate implements the MessageValidator interface.
func (t *Throttling) Validate(msg *shared.Message) error {
	pair := t.getLimiters(msg.Session)

	if !pair.rpmLimiter.Allow() {
		return errors.New("RPM throttling limit exceeded")
	}
	if !pair.rpsLimiter.Allow() {
		return errors.New("RPS throttling limit exceeded")
	}
	return nil
}
