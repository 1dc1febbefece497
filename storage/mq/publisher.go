package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"KayaAttend/config"
	"KayaAttend/pkg/logger"
	mqotel "KayaAttend/pkg/mq"
)

var (
	publisherCh *amqp.Channel
	pubMutex    sync.RWMutex // 读多写少
)

// getPublisherChannel 复用一个发布 channel，关闭后下次发布时重建
func getPublisherChannel() (*amqp.Channel, error) {
	pubMutex.RLock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		ch := publisherCh
		pubMutex.RUnlock()
		return ch, nil
	}
	pubMutex.RUnlock()

	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisherCh != nil && !publisherCh.IsClosed() {
		return publisherCh, nil
	}

	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	publisherCh = ch

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closeChan

		pubMutex.Lock()
		if publisherCh == ch {
			publisherCh = nil
		}
		pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)

	return ch, nil
}

// PublishMessage 发送 JSON 消息，messageID 用于下游去重
func PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	ch, err := getPublisherChannel()
	if err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         bodyBytes,
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	if config.Cfg.OTelEnabled {
		err = mqotel.PublishWithTracing(ctx, ch, config.Cfg.ServiceName, exchange, routingKey, msg)
	} else {
		err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
