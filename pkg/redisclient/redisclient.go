// Package redisclient builds the shared redis client with a bounded
// connect-attempt loop.
package redisclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
)

type settings struct {
	connAttempts int
	connTimeout  time.Duration

	password string
	db       int
}

func New(ctx context.Context, addr string, opts ...Option) (*redis.Client, error) {
	s := &settings{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: s.password,
		DB:       s.db,
	})

	var err error

	for s.connAttempts > 0 {
		err = client.Ping(ctx).Err()
		if err == nil {
			break
		}

		log.Printf("Redis is trying to connect, attempts left: %d", s.connAttempts)

		time.Sleep(s.connTimeout)

		s.connAttempts--
	}

	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("Redis - New - connAttempts == 0: %w", err)
	}

	return client, nil
}
