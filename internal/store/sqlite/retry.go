package sqlite

import (
	"math/rand"
	"strings"
	"time"
)

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientErr matches SQLite lock contention errors worth retrying.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isUniqueErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOp(cfg retryConfig, fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if err = fn(); err == nil || !isTransientErr(err) {
			return err
		}
		if attempt == cfg.maxRetries {
			break
		}
		delay := cfg.baseDelay << attempt
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		time.Sleep(delay/2 + jitter)
	}
	return err
}

func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}
