package live

import (
	"context"
	"time"

	"agrihill-backend/internal/infrastructure/docstore"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// ErrorClass is the user-facing category of a failed write.
type ErrorClass string

const (
	ClassNone             ErrorClass = ""
	ClassPermissionDenied ErrorClass = "permission-denied"
	ClassUnavailable      ErrorClass = "unavailable"
	ClassOther            ErrorClass = "other"
)

// Classify maps a store error onto an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	switch docstore.CodeOf(err) {
	case docstore.CodePermissionDenied:
		return ClassPermissionDenied
	case docstore.CodeUnavailable:
		return ClassUnavailable
	}
	return ClassOther
}

// Messages are the user-facing texts for each outcome. Blank entries fall
// back to generic wording.
type Messages struct {
	Success          string
	PermissionDenied string
	Unavailable      string
	Other            string
}

func (m Messages) forClass(c ErrorClass) string {
	pick := func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	}
	switch c {
	case ClassNone:
		return pick(m.Success, "Saved successfully!")
	case ClassPermissionDenied:
		return pick(m.PermissionDenied, "You don't have permission to do that. Please sign in again.")
	case ClassUnavailable:
		return pick(m.Unavailable, "Service temporarily unavailable. Try again later.")
	}
	return pick(m.Other, "Something went wrong. Please try again.")
}

// Outcome reports how a submission ended.
type Outcome struct {
	ID       string
	Attempts int
	Class    ErrorClass
	Err      error
	Message  string
}

func (o Outcome) OK() bool { return o.Err == nil }

// Progress is told before each retry which attempt comes next.
type Progress func(attempt, maxAttempts int)

// Submitter appends one document to a collection, retrying any failure a
// bounded number of times with a fixed delay in between. Every error class
// is retried; the class only picks the message shown after the last attempt.
type Submitter struct {
	Writer      docstore.Writer
	Collection  string
	MaxAttempts int
	Delay       time.Duration
	Messages    Messages
}

func (s *Submitter) Submit(ctx context.Context, fields map[string]any, progress Progress) Outcome {
	maxAttempts := s.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := s.Writer.Add(ctx, s.Collection, fields)
		if err == nil {
			return Outcome{ID: id, Attempts: attempt, Message: s.Messages.forClass(ClassNone)}
		}
		lastErr = err
		log.Warn().Err(err).
			Str("collection", s.Collection).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("submit: write failed")

		if attempt == maxAttempts {
			break
		}
		if progress != nil {
			progress(attempt+1, maxAttempts)
		}
		if err := sleep(ctx, delay); err != nil {
			return s.failed(attempt, lastErr)
		}
	}
	return s.failed(maxAttempts, lastErr)
}

func (s *Submitter) failed(attempts int, err error) Outcome {
	class := Classify(err)
	log.Error().Err(err).
		Str("collection", s.Collection).
		Str("class", string(class)).
		Int("attempts", attempts).
		Msg("submit: giving up")
	return Outcome{
		Attempts: attempts,
		Class:    class,
		Err:      err,
		Message:  s.Messages.forClass(class),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
