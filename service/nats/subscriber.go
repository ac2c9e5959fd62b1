package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamSubscriber streams transfer events to server-sent event clients and
// the CLI.
type JetStreamSubscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming transfer events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*JetStreamSubscriber, error) {
	nc, err := Connect(natsURL, "solapi-subscriber")
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := EnsureStream(ctx, js, logger); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &JetStreamSubscriber{nc: nc, js: js, logger: logger}, nil
}

// SubscribeTransfers delivers new events for address (all senders when empty)
// until ctx is cancelled or handle returns an error.
func (s *JetStreamSubscriber) SubscribeTransfers(ctx context.Context, address string, handle func(*TransferEvent) error) error {
	return Subscribe(ctx, s.js, address, s.logger, handle)
}

// Close closes the connection to NATS.
func (s *JetStreamSubscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// SubjectFor returns the subject filter for address, or every transfer subject
// when address is empty.
func SubjectFor(address string) string {
	if address == "" {
		return StreamSubjects
	}
	return SubjectPrefix + address
}

// Subscribe delivers new transfer events for address to handle until ctx is
// cancelled. Undecodable messages are logged and acknowledged. An error from
// handle stops the subscription and is returned.
func Subscribe(ctx context.Context, js jetstream.JetStream, address string, logger *slog.Logger, handle func(*TransferEvent) error) error {
	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: SubjectFor(address),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	defer cc.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgChan:
			var event TransferEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.WarnContext(ctx, "failed to unmarshal transfer event",
					"subject", msg.Subject(),
					"error", err,
				)
				_ = msg.Ack()
				continue
			}
			if err := handle(&event); err != nil {
				_ = msg.Nak()
				return err
			}
			_ = msg.Ack()
		}
	}
}
