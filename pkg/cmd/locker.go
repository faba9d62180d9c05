package cmd

import (
	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/lock/redis"
)

const lockPrefix = "ruleflow:"

// NewLocker returns a Redis locker when redisURL is set, else an
// in-process one.
func NewLocker(redisURL string) (lock.Locker, error) {
	if redisURL == "" {
		return lock.NewLocal(), nil
	}

	locker, err := redis.NewLockerFromURL(redisURL, lockPrefix)
	if err != nil {
		return nil, err
	}

	return locker, nil
}
