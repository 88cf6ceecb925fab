package sgpauth

import (
	"context"
	"time"

	"github.com/pepe1603/sgpauth/mailq"
)

// RunWarningScheduler pre-warns accounts that are approaching the inactivity
// threshold. The first sweep runs at the next occurrence of SweepHour (UTC)
// and subsequent sweeps run every SweepInterval from there. It blocks until
// ctx is done.
func (e *Engine) RunWarningScheduler(ctx context.Context) error {
	if e.users == nil || e.mail == nil {
		return ErrEngineNotReady
	}

	first := nextSweep(time.Now().UTC(), e.config.Warning.SweepHour)
	e.log().Info("warning scheduler started",
		"first_sweep", first.Format(time.RFC3339),
		"interval", e.config.Warning.SweepInterval)

	timer := time.NewTimer(time.Until(first))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	ticker := time.NewTicker(e.config.Warning.SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := e.SweepWarnings(ctx, time.Now().UTC()); err != nil {
			e.log().Error("warning sweep failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// nextSweep returns the next occurrence of hour (UTC) strictly after now.
func nextSweep(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// SweepWarnings sends one warning to every account whose last login falls
// inside the warning window and that has not already been warned within it.
// The computed suspension date is lastLogin + threshold. A failure for one
// account is logged and does not abort the sweep; the number of warnings
// actually sent is returned.
func (e *Engine) SweepWarnings(ctx context.Context, now time.Time) (int, error) {
	threshold := e.config.Inactivity.Threshold
	window := e.config.Warning.Window

	// (now - threshold, now - (threshold - window)]
	after := now.Add(-threshold)
	until := now.Add(-(threshold - window))
	warnedBefore := now.Add(-window)

	due, err := e.users.DueForWarning(ctx, after, until, warnedBefore)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		user := &due[i]
		if user.LastLoginAt == nil {
			continue
		}
		suspendAt := user.LastLoginAt.Add(threshold)

		err := e.mail.Enqueue(ctx, mailq.Message{
			To:       user.Email,
			Subject:  "Your account will be suspended soon",
			Template: mailq.TemplateSuspensionWarning,
			Model: map[string]string{
				"email":         user.Email,
				"last_login":    user.LastLoginAt.Format(time.RFC3339),
				"suspension_at": suspendAt.Format(time.RFC3339),
			},
		})
		if err != nil {
			e.log().Error("enqueueing suspension warning", "email", user.Email, "err", err)
			continue
		}

		if err := e.users.MarkWarned(ctx, user.ID, now); err != nil {
			e.log().Error("recording warning timestamp", "email", user.Email, "err", err)
			continue
		}
		sent++
	}

	return sent, nil
}
