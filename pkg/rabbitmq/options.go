package rabbitmq

import "time"

type Option func(*RabbitMQ)

func ConnRetries(retries int) Option {
	return func(r *RabbitMQ) {
		r.connRetries = retries
	}
}

func ConnBaseDelay(delay time.Duration) Option {
	return func(r *RabbitMQ) {
		r.connBaseDelay = delay
	}
}

func ConnMaxDelay(delay time.Duration) Option {
	return func(r *RabbitMQ) {
		r.connMaxDelay = delay
	}
}

func Prefetch(count int) Option {
	return func(r *RabbitMQ) {
		r.prefetch = count
	}
}

func Exchange(name string) Option {
	return func(r *RabbitMQ) {
		r.exchange = name
	}
}

func DeadLetterExchange(name string) Option {
	return func(r *RabbitMQ) {
		r.dlExchange = name
	}
}

func DeadLetterQueue(name string) Option {
	return func(r *RabbitMQ) {
		r.dlQueue = name
	}
}
