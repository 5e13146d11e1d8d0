package providers

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
)

// verifySignal reports how a verification poll concluded.
type verifySignal int

const (
	verifyTimedOut verifySignal = iota
	// verifyGone means the watched challenge element became invisible or
	// left the DOM.
	verifyGone
	// verifyToken means an explicit success token was observed in page text.
	verifyToken
)

// pollVerification is the shared verification primitive. It polls at the
// configured interval up to the timeout, checking two independent signals:
// the watched element disappearing, and any tracked element's text carrying a
// success token. Either signal ends polling immediately. Every iteration
// forces a fresh DOM scan; stale snapshots were the dominant source of
// verification false-negatives in earlier designs, so cached element state is
// never consulted here.
func (e *Env) pollVerification(ctx context.Context, contextID, watchSelector string, interval, timeout time.Duration) verifySignal {
	if interval <= 0 {
		interval = e.Solver.VerifyInterval
	}
	if timeout <= 0 {
		timeout = e.Solver.VerifyTimeout
	}

	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return verifyTimedOut
		}

		if elements, err := e.scanElements(ctx, contextID, "*"); err == nil {
			if hasSuccessToken(elements) {
				return verifyToken
			}
		} else {
			e.Logger.Debug("verification scan failed", zap.Error(err))
		}

		if watchSelector != "" {
			visible, err := e.anyVisible(ctx, contextID, watchSelector)
			switch {
			case err != nil:
				// Indeterminate: a failed scan proves nothing about the
				// element. Keep polling instead of reading it as gone.
				e.Logger.Debug("watch scan failed", zap.Error(err))
			case !visible:
				return verifyGone
			}
		}

		if time.Now().After(deadline) {
			return verifyTimedOut
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return verifyTimedOut
		}
	}
}

func hasSuccessToken(elements []schemas.ElementInfo) bool {
	for _, el := range elements {
		text := strings.ToLower(el.Text)
		if text == "" {
			continue
		}
		for _, token := range assets.SuccessTokens() {
			if strings.Contains(text, token) {
				return true
			}
		}
	}
	return false
}
