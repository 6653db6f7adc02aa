package codegen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherd/pkg/contracts/domain"
)

func TestGenerateBatch_Sequential(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		prefix   string
		existing map[string]bool
		want     []string
		wantErr  bool
	}{
		{
			name:   "clean namespace pads from one",
			count:  3,
			prefix: "user",
			want:   []string{"user0001", "user0002", "user0003"},
		},
		{
			name:     "collision skips index forward",
			count:    3,
			prefix:   "user",
			existing: map[string]bool{"user0002": true},
			want:     []string{"user0001", "user0003", "user0004"},
		},
		{
			name:    "empty prefix rejected",
			count:   3,
			prefix:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := New(3)
			codes, err := gen.GenerateBatch(context.Background(), Request{
				Count:  tt.count,
				Policy: domain.NamingSequential,
				Prefix: tt.prefix,
				Exists: func(_ context.Context, code string) (bool, error) {
					return tt.existing[code], nil
				},
			})

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestGenerateBatch_SequentialScenario(t *testing.T) {
	// count=10, prefix=user, no conflicts: user0001..user0010 in order.
	gen := New(3)
	codes, err := gen.GenerateBatch(context.Background(), Request{
		Count:  10,
		Policy: domain.NamingSequential,
		Prefix: "user",
	})
	require.NoError(t, err)
	require.Len(t, codes, 10)
	assert.Equal(t, "user0001", codes[0])
	assert.Equal(t, "user0010", codes[9])
}

func TestGenerateBatch_SequentialExhausted(t *testing.T) {
	// Every candidate collides, so the 3x budget runs out with nothing minted.
	gen := New(3)
	_, err := gen.GenerateBatch(context.Background(), Request{
		Count:  5,
		Policy: domain.NamingSequential,
		Prefix: "user",
		Exists: func(context.Context, string) (bool, error) { return true, nil },
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 15, exhausted.Attempted)
	assert.Equal(t, 0, exhausted.Succeeded)
}

func TestGenerateBatch_Random(t *testing.T) {
	gen := New(3)
	codes, err := gen.GenerateBatch(context.Background(), Request{
		Count:         5,
		Policy:        domain.NamingRandom,
		CharsetLength: 4,
	})
	require.NoError(t, err)
	require.Len(t, codes, 5)

	shape := regexp.MustCompile(`^[a-z0-9]{4}$`)
	seen := make(map[string]struct{})
	for _, code := range codes {
		assert.Regexp(t, shape, code)
		_, dup := seen[code]
		assert.False(t, dup, "code %q repeated within batch", code)
		seen[code] = struct{}{}
	}
}

func TestGenerateBatch_RandomDefaultLength(t *testing.T) {
	gen := New(3)
	codes, err := gen.GenerateBatch(context.Background(), Request{
		Count:  1,
		Policy: domain.NamingRandom,
	})
	require.NoError(t, err)
	assert.Len(t, codes[0], DefaultCharsetLength)
}

func TestGenerateBatch_RandomExhausted(t *testing.T) {
	gen := New(2)
	_, err := gen.GenerateBatch(context.Background(), Request{
		Count:         4,
		Policy:        domain.NamingRandom,
		CharsetLength: 6,
		Exists:        func(context.Context, string) (bool, error) { return true, nil },
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 8, exhausted.Attempted)
	assert.Equal(t, 0, exhausted.Succeeded)
}

func TestGenerateBatch_ExistsErrorPropagates(t *testing.T) {
	gen := New(3)
	probeErr := errors.New("store offline")
	_, err := gen.GenerateBatch(context.Background(), Request{
		Count:  2,
		Policy: domain.NamingSequential,
		Prefix: "user",
		Exists: func(context.Context, string) (bool, error) { return false, probeErr },
	})
	require.ErrorIs(t, err, probeErr)
}

func TestGenerateBatch_CancelledContext(t *testing.T) {
	gen := New(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.GenerateBatch(ctx, Request{
		Count:  10,
		Policy: domain.NamingRandom,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateBatch_UnknownPolicy(t *testing.T) {
	gen := New(3)
	_, err := gen.GenerateBatch(context.Background(), Request{
		Count:  1,
		Policy: domain.NamingPolicy("alphabetical"),
	})
	require.Error(t, err)
}

func TestGenerateBatch_UniquenessAcrossCalls(t *testing.T) {
	// Simulate commit-then-regenerate: the second batch must avoid everything
	// the first one persisted.
	gen := New(3)
	persisted := make(map[string]bool)
	exists := func(_ context.Context, code string) (bool, error) {
		return persisted[code], nil
	}

	for round := 0; round < 3; round++ {
		codes, err := gen.GenerateBatch(context.Background(), Request{
			Count:  4,
			Policy: domain.NamingSequential,
			Prefix: "cafe",
			Exists: exists,
		})
		require.NoError(t, err, "round %d", round)
		for _, code := range codes {
			require.False(t, persisted[code], fmt.Sprintf("code %q reused in round %d", code, round))
			persisted[code] = true
		}
	}
	assert.Len(t, persisted, 12)
}
