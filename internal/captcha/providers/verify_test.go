package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

func TestPollVerificationReturnsWhenElementGoes(t *testing.T) {
	var watchScans atomic.Int32
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern != "#challenge" {
				return nil
			}
			// Visible for the first three polls, gone on the fourth.
			if watchScans.Add(1) <= 3 {
				return []schemas.ElementInfo{visibleEl("#challenge", "div", "")}
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	start := time.Now()
	sig := env.pollVerification(context.Background(), "ctx-1", "#challenge", 200*time.Millisecond, 10*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, verifyGone, sig)
	// Three visible polls at 200ms spacing: success lands around 600-800ms,
	// nowhere near the 10s timeout.
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestPollVerificationScanFailureIsNotGone(t *testing.T) {
	// A DOM layer that cannot scan at all proves nothing about the watched
	// element; the poll must run to its timeout instead of reporting the
	// element gone.
	dom := &fakeDOM{
		ScanErr: func(string, int) error { return errors.New("target closed") },
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	start := time.Now()
	sig := env.pollVerification(context.Background(), "ctx-1", "#challenge", 10*time.Millisecond, 60*time.Millisecond)

	assert.Equal(t, verifyTimedOut, sig)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPollVerificationRecoversAfterTransientScanFailure(t *testing.T) {
	// Scans fail twice, then succeed with the element genuinely absent.
	// Gone may only be concluded from that successful scan.
	var failures atomic.Int32
	dom := &fakeDOM{
		ScanErr: func(pattern string, scanCount int) error {
			if pattern == "#challenge" && failures.Add(1) <= 2 {
				return errors.New("frame detached")
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	sig := env.pollVerification(context.Background(), "ctx-1", "#challenge", 10*time.Millisecond, time.Second)
	assert.Equal(t, verifyGone, sig)
}

func TestPollVerificationDetectsSuccessToken(t *testing.T) {
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern == "*" && scanCount >= 2 {
				return []schemas.ElementInfo{visibleEl("#msg", "div", "You are verified")}
			}
			if pattern == "#challenge" {
				return []schemas.ElementInfo{visibleEl("#challenge", "div", "")}
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	sig := env.pollVerification(context.Background(), "ctx-1", "#challenge", 10*time.Millisecond, time.Second)
	assert.Equal(t, verifyToken, sig)
}

func TestPollVerificationTimesOut(t *testing.T) {
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern == "#challenge" {
				return []schemas.ElementInfo{visibleEl("#challenge", "div", "")}
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	start := time.Now()
	sig := env.pollVerification(context.Background(), "ctx-1", "#challenge", 10*time.Millisecond, 80*time.Millisecond)

	assert.Equal(t, verifyTimedOut, sig)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollVerificationHonorsCancellation(t *testing.T) {
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			if pattern == "#challenge" {
				return []schemas.ElementInfo{visibleEl("#challenge", "div", "")}
			}
			return nil
		},
	}
	env := newTestEnv(dom, &fakeInput{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := env.pollVerification(ctx, "ctx-1", "#challenge", 10*time.Millisecond, time.Minute)
	assert.Equal(t, verifyTimedOut, sig)
}

func TestHasSuccessToken(t *testing.T) {
	assert.True(t, hasSuccessToken([]schemas.ElementInfo{{Text: "Verification SUCCESS"}}))
	assert.True(t, hasSuccessToken([]schemas.ElementInfo{{Text: "answer was correct"}}))
	assert.False(t, hasSuccessToken([]schemas.ElementInfo{{Text: "please verify you are human"}}))
	assert.False(t, hasSuccessToken(nil))
}
