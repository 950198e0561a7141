package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"animalfaces-api/internal/platform"
)

func New(ctx context.Context, url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	err := platform.Retry(ctx, "rabbitmq", 15*time.Second, func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			return fmt.Errorf("dial rabbitmq failed: %w", err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	_ = ch.Close()

	return conn, nil
}
