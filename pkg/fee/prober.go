// Package fee discovers a cross-chain fee by probing ascending executor gas budgets.
package fee

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"oft-bridge/pkg/metrics"
	"oft-bridge/pkg/types"
)

// DefaultSafetyMarginPercent pads the native fee to absorb fee-market movement
// between quote and inclusion
const DefaultSafetyMarginPercent = 10

// QuoteFunc asks the source chain for a fee given an encoded executor option
type QuoteFunc func(ctx context.Context, options []byte) (types.MessagingFee, error)

// Attempt is one probe outcome, kept for observability only
type Attempt struct {
	Gas     uint64
	Success bool
	Fee     *big.Int // native fee, set when Success
	Err     error
	Elapsed time.Duration
}

// Result is the first accepted candidate and its quote
type Result struct {
	Candidate Candidate
	Index     int // zero-based position in the candidate list
	Fee       types.MessagingFee
}

// Quote converts the result into a FeeQuote
func (r Result) Quote() types.FeeQuote {
	return types.FeeQuote{
		NativeFee:        r.Fee.NativeFee,
		ProtocolTokenFee: r.Fee.LzTokenFee,
		GasOption:        r.Candidate.Options,
		Gas:              r.Candidate.Gas,
	}
}

// Probe walks candidates in order and returns the first one whose quote succeeds with a
// usable native fee. This is a floor search: it never compares later candidates, so it
// finds the lowest working budget on the ladder, not a proven minimum-cost one.
//
// Calls are strictly sequential. Exhausting the list returns ErrNoViableRoute, which
// points at a peer/enforced-options misconfiguration rather than a transient fault.
func Probe(ctx context.Context, candidates []Candidate, quote QuoteFunc) (Result, []Attempt, error) {
	attempts := make([]Attempt, 0, len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, attempts, err
		}

		start := time.Now()
		fee, err := quote(ctx, c.Options)
		attempt := Attempt{Gas: c.Gas, Elapsed: time.Since(start)}

		if err == nil {
			err = checkFee(fee)
		}
		if err != nil {
			attempt.Err = err
			attempts = append(attempts, attempt)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, attempts, ctxErr
			}
			continue
		}

		attempt.Success = true
		attempt.Fee = fee.NativeFee
		attempts = append(attempts, attempt)
		return Result{Candidate: c, Index: i, Fee: fee}, attempts, nil
	}

	return Result{}, attempts, types.WrapErr(types.ErrNoViableRoute,
		fmt.Errorf("%d candidates rejected", len(candidates)))
}

func checkFee(fee types.MessagingFee) error {
	if fee.NativeFee == nil {
		return errors.New("quote returned no native fee")
	}
	if fee.NativeFee.Sign() < 0 {
		return fmt.Errorf("quote returned negative native fee %s", fee.NativeFee)
	}
	return nil
}

// ApplySafetyMargin returns fee * (100 + percent) / 100, truncated
func ApplySafetyMargin(fee *big.Int, percent uint64) *big.Int {
	if fee == nil {
		return nil
	}
	padded := new(big.Int).Mul(fee, new(big.Int).SetUint64(100+percent))
	return padded.Div(padded, big.NewInt(100))
}

// Prober runs Probe against a fixed candidate list
type Prober struct {
	candidates []Candidate
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Prober
type Option func(*Prober)

// WithCandidates replaces the default gas ladder
func WithCandidates(candidates []Candidate) Option {
	return func(p *Prober) { p.candidates = candidates }
}

// WithRateLimit spaces probe calls to at most rps per second (0 disables)
func WithRateLimit(rps float64) Option {
	return func(p *Prober) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger.Named("prober")
		}
	}
}

// NewProber creates a prober over DefaultCandidates unless overridden
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		candidates: DefaultCandidates(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates returns the gas ladder in probe order
func (p *Prober) Candidates() []Candidate {
	return p.candidates
}

// FindViableQuote probes the ladder for intent. The attempt log is returned even on
// failure so callers can show why each budget was rejected.
func (p *Prober) FindViableQuote(ctx context.Context, intent types.TransferIntent, quote QuoteFunc) (types.FeeQuote, []Attempt, error) {
	from, to := intent.FromChain.Name, intent.ToChain.Name

	quoteFn := quote
	if p.limiter != nil {
		quoteFn = func(ctx context.Context, options []byte) (types.MessagingFee, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				return types.MessagingFee{}, err
			}
			return quote(ctx, options)
		}
	}

	result, attempts, err := Probe(ctx, p.candidates, quoteFn)

	for _, a := range attempts {
		if a.Success {
			metrics.ProbeAttemptsTotal.WithLabelValues(from, to, "ok").Inc()
			p.logger.Debug("candidate accepted",
				zap.Uint64("gas", a.Gas),
				zap.String("native_fee", a.Fee.String()),
				zap.Duration("elapsed", a.Elapsed))
			continue
		}
		metrics.ProbeAttemptsTotal.WithLabelValues(from, to, "rejected").Inc()
		p.logger.Debug("candidate rejected",
			zap.Uint64("gas", a.Gas),
			zap.Duration("elapsed", a.Elapsed),
			zap.Error(a.Err))
	}

	if err != nil {
		if errors.Is(err, types.ErrNoViableRoute) {
			metrics.NoViableRouteTotal.WithLabelValues(from, to).Inc()
			p.logger.Warn("no viable route",
				zap.String("from", from),
				zap.String("to", to),
				zap.Uint32("dst_eid", intent.ToChain.EndpointID),
				zap.Int("candidates", len(p.candidates)))
		}
		return types.FeeQuote{}, attempts, err
	}

	metrics.ProbeAcceptedGas.WithLabelValues(from, to).Observe(float64(result.Candidate.Gas))
	p.logger.Info("found viable gas option",
		zap.String("from", from),
		zap.String("to", to),
		zap.Uint64("gas", result.Candidate.Gas),
		zap.Int("attempts", len(attempts)),
		zap.String("native_fee", result.Fee.NativeFee.String()))

	return result.Quote(), attempts, nil
}
