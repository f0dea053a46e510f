package redisclient

import "time"

type Option func(*settings)

func ConnAttempts(attempts int) Option {
	return func(s *settings) {
		s.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.connTimeout = timeout
	}
}

func Password(password string) Option {
	return func(s *settings) {
		s.password = password
	}
}

func DB(db int) Option {
	return func(s *settings) {
		s.db = db
	}
}
