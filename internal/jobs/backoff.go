package jobs

import "time"

// Policy is the explicit retry/backoff contract for transcode jobs.
// Keeping it as plain data rather than broker behavior makes the schedule
// inspectable and portable.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   int
}

// DefaultPolicy matches the production configuration: three attempts with
// delays of 5s, 10s and 20s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the backoff imposed after attempt n fails (n starts at 1)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(p.Multiplier)
	}
	return delay
}

// Exhausted reports whether a job failing on the given attempt has no
// retries left
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
