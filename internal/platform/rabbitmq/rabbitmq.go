package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"medtrak/internal/platform"
)

// Dial connects to the broker and declares the annotation queue so that
// publishing works before the worker has started.
func Dial(ctx context.Context, url, queueName, connectionName string, logger zerolog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	err := platform.Retry(ctx, logger, "rabbitmq", func(ctx context.Context) error {
		dialed, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat:  10 * time.Second,
			Properties: amqp.Table{"connection_name": connectionName},
		})
		if err != nil {
			return fmt.Errorf("dial rabbitmq failed: %w", err)
		}
		if err := declare(ctx, dialed, queueName); err != nil {
			_ = dialed.Close()
			return err
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func declare(ctx context.Context, conn *amqp.Connection, queueName string) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err != nil {
			done <- fmt.Errorf("open rabbitmq channel failed: %w", err)
			return
		}
		defer ch.Close()
		_, err = DeclareQueue(ch, queueName)
		done <- err
	}()

	select {
	case <-checkCtx.Done():
		return fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		return err
	}
}
