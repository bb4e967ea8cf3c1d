// Package predicate decides whether a candidate is evenly divisible by every
// integer below a bound, and scans blocks of candidates for the first one that is.
package predicate

import (
	"context"
	"fmt"

	"github.com/me/worksizing/pkg/model"
)

// cancelCheckInterval is how many candidates SearchBlock scans between
// context checks.
const cancelCheckInterval = 1024

// Divisor reports whether i evenly divides n.
// A Divisor may hold per-goroutine state and must not be shared between workers.
type Divisor func(n, i int64) bool

// Rule produces Divisors. Each worker asks for its own.
type Rule interface {
	Divisor() (Divisor, error)
}

// DivisorFunc adapts a stateless function to the Rule interface.
type DivisorFunc func(n, i int64) bool

// Divisor returns f itself; stateless functions are safe to share.
func (f DivisorFunc) Divisor() (Divisor, error) {
	return Divisor(f), nil
}

// Modulo is the built-in integer divisibility rule.
var Modulo Rule = DivisorFunc(func(n, i int64) bool {
	return n%i == 0
})

// IsValid reports whether d(n, i) holds for every i in [1, upperBound).
// Divisors are probed in ascending order and probing stops at the first failure.
func IsValid(n, upperBound int64, d Divisor) bool {
	for i := int64(1); i < upperBound; i++ {
		if !d(n, i) {
			return false
		}
	}
	return true
}

// SearchBlock scans b in ascending order and returns the first candidate that
// satisfies IsValid. The boolean is false when the block holds no such candidate.
// A cancelled context stops the scan and its error is returned.
func SearchBlock(ctx context.Context, b model.Block, upperBound int64, d Divisor) (int64, bool, error) {
	for n := b.Start; n < b.End; n++ {
		if (n-b.Start)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, false, err
			}
		}
		if IsValid(n, upperBound, d) {
			return n, true, nil
		}
	}
	return 0, false, nil
}

// Evaluator binds a Rule to the search bound of one run.
type Evaluator struct {
	rule  Rule
	bound int64
}

// NewEvaluator creates an evaluator for bound. A nil rule selects Modulo.
func NewEvaluator(rule Rule, bound int64) *Evaluator {
	if rule == nil {
		rule = Modulo
	}
	return &Evaluator{rule: rule, bound: bound}
}

// Bound returns the exclusive upper end of the divisor range.
func (e *Evaluator) Bound() int64 {
	return e.bound
}

// Search runs SearchBlock for b with a Divisor obtained for the calling goroutine.
func (e *Evaluator) Search(ctx context.Context, b model.Block) (int64, bool, error) {
	d, err := e.rule.Divisor()
	if err != nil {
		return 0, false, fmt.Errorf("divisor for block %s: %w", b, err)
	}
	return SearchBlock(ctx, b, e.bound, d)
}
