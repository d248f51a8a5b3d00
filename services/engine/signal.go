package engine

// Signal sources. The engine is signal-agnostic: the strategy/bot that
// decides entries and exits lives behind SignalSource.

// Side of a trade or signal.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Signal is a directional instruction with optional protective levels.
// StopLoss/TakeProfit of 0 mean "not set".
type Signal struct {
	Side       Side
	StopLoss   float64
	TakeProfit float64
}

// SignalSource yields zero or one signal per simulated bar. history holds
// all candles up to and including index i.
type SignalSource interface {
	SignalAt(i int, history []Candle) (Signal, bool)
}

// SignalFunc adapts a plain function to SignalSource.
type SignalFunc func(i int, history []Candle) (Signal, bool)

func (f SignalFunc) SignalAt(i int, history []Candle) (Signal, bool) { return f(i, history) }

// ScriptedSource replays a fixed bar-index -> signal schedule. Deterministic
// by construction; used by tests and demos.
type ScriptedSource struct {
	Signals map[int]Signal
}

func (s *ScriptedSource) SignalAt(i int, _ []Candle) (Signal, bool) {
	sig, ok := s.Signals[i]
	return sig, ok
}

// CrossoverSource is a minimal SMA crossover source so the CLIs can run
// end-to-end without an external bot. Long on fast crossing above slow,
// short on crossing below.
type CrossoverSource struct {
	Fast int
	Slow int
}

func (c *CrossoverSource) SignalAt(i int, history []Candle) (Signal, bool) {
	fast, slow := c.Fast, c.Slow
	if fast <= 0 {
		fast = 10
	}
	if slow <= fast {
		slow = fast * 3
	}
	if i < slow {
		return Signal{}, false
	}
	fNow := sma(history, i, fast)
	sNow := sma(history, i, slow)
	fPrev := sma(history, i-1, fast)
	sPrev := sma(history, i-1, slow)
	if fPrev <= sPrev && fNow > sNow {
		return Signal{Side: Long}, true
	}
	if fPrev >= sPrev && fNow < sNow {
		return Signal{Side: Short}, true
	}
	return Signal{}, false
}

// sma averages closes over the period ending at index i.
func sma(h []Candle, i, period int) float64 {
	if i+1 < period {
		return 0
	}
	sum := 0.0
	for j := i - period + 1; j <= i; j++ {
		sum += h[j].Close
	}
	return sum / float64(period)
}
