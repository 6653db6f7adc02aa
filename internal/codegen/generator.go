// Package codegen mints unique voucher codes. Generation is pure: codes are
// checked against the caller-supplied existence probe but nothing is
// persisted here. Committing a batch is the voucher service's job.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"voucherd/pkg/contracts/domain"
)

// charset is the alphabet for randomized codes. Lowercase plus digits keeps
// codes easy to type on a captive-portal login form.
const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultCharsetLength is used when a random request does not specify one.
// Matches the 8-character codes the original generator produced.
const DefaultCharsetLength = 8

// ExistsFunc reports whether a code is already persisted in the target
// namespace.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Request describes one batch of codes to mint.
type Request struct {
	Count         int
	Policy        domain.NamingPolicy
	Prefix        string
	SequentialPad int
	CharsetLength int
	Exists        ExistsFunc
}

// ExhaustedError is returned when the uniqueness retry budget runs out.
// Attempted and Succeeded let the caller decide whether to retry with a
// smaller count or a different prefix.
type ExhaustedError struct {
	Attempted int
	Succeeded int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("code generation exhausted retry budget: %d attempted, %d unique", e.Attempted, e.Succeeded)
}

// Generator mints batches of unique codes under a naming policy.
type Generator struct {
	retryMultiplier int
}

// New creates a generator. retryMultiplier bounds the number of candidate
// codes examined per batch at retryMultiplier * count.
func New(retryMultiplier int) *Generator {
	if retryMultiplier < 1 {
		retryMultiplier = 3
	}
	return &Generator{retryMultiplier: retryMultiplier}
}

// GenerateBatch returns req.Count codes, unique within the returned sequence
// and absent from the namespace probed by req.Exists. The whole batch fails
// with *ExhaustedError when the retry budget runs out; no partial result is
// returned.
func (g *Generator) GenerateBatch(ctx context.Context, req Request) ([]string, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", req.Count)
	}
	if req.Exists == nil {
		req.Exists = func(context.Context, string) (bool, error) { return false, nil }
	}

	switch req.Policy {
	case domain.NamingSequential:
		return g.generateSequential(ctx, req)
	case domain.NamingRandom:
		return g.generateRandom(ctx, req)
	default:
		return nil, fmt.Errorf("unknown naming policy %q", req.Policy)
	}
}

// generateSequential produces prefix + zero-padded index codes starting at 1.
// An index that collides with a persisted code is skipped forward, never
// overwritten.
func (g *Generator) generateSequential(ctx context.Context, req Request) ([]string, error) {
	if req.Prefix == "" {
		return nil, fmt.Errorf("sequential policy requires a non-empty prefix")
	}
	pad := req.SequentialPad
	if pad < 1 {
		pad = 4
	}

	budget := g.retryMultiplier * req.Count
	codes := make([]string, 0, req.Count)
	attempted := 0

	for idx := 1; len(codes) < req.Count; idx++ {
		if attempted >= budget {
			return nil, &ExhaustedError{Attempted: attempted, Succeeded: len(codes)}
		}
		attempted++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code := fmt.Sprintf("%s%0*d", req.Prefix, pad, idx)
		taken, err := req.Exists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("uniqueness check for %q: %w", code, err)
		}
		if taken {
			continue
		}
		codes = append(codes, code)
	}

	return codes, nil
}

// generateRandom draws codes from the fixed charset. Duplicates within the
// batch and collisions with persisted codes both consume retry budget.
func (g *Generator) generateRandom(ctx context.Context, req Request) ([]string, error) {
	length := req.CharsetLength
	if length < 1 {
		length = DefaultCharsetLength
	}

	budget := g.retryMultiplier * req.Count
	codes := make([]string, 0, req.Count)
	seen := make(map[string]struct{}, req.Count)
	attempted := 0

	for len(codes) < req.Count {
		if attempted >= budget {
			return nil, &ExhaustedError{Attempted: attempted, Succeeded: len(codes)}
		}
		attempted++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := randomCode(length)
		if err != nil {
			return nil, fmt.Errorf("drawing random code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		taken, err := req.Exists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("uniqueness check for %q: %w", code, err)
		}
		if taken {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// randomCode draws length characters from charset using crypto/rand.
func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = charset[n.Int64()]
	}
	return string(buf), nil
}
