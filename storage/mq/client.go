package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"KayaAttend/config"
)

const (
	// AttendanceExchange 考勤事件交换机
	AttendanceExchange = "attendance.events"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			connErr = fmt.Errorf("failed to connect RabbitMQ: %w", connErr)
			return
		}

		connErr = declareTopology()
	})

	return connErr
}

// declareTopology 声明事件交换机，下游自行绑定队列
func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		AttendanceExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", AttendanceExchange, err)
	}

	return nil
}

// Connection 未开启 MQ 时返回 nil
func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		_ = publisherCh.Close()
	}
	publisherCh = nil
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}
