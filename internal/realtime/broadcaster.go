package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"challenge-chat/internal/models"
	"challenge-chat/internal/observability"
)

// Fanout delivers an encoded event to the sockets subscribed to a topic on
// this instance.
type Fanout interface {
	Publish(topic string, payload []byte)
}

// Broadcaster announces persisted items to every subscriber of their topic.
type Broadcaster interface {
	Broadcast(ctx context.Context, item models.ChatItem) error
	// Run blocks relaying remote broadcasts into the local fanout until ctx
	// is done.
	Run(ctx context.Context) error
	Close() error
}

// NewBroadcaster uses RabbitMQ when amqpURL is reachable so every instance
// sees every topic, and falls back to in-process fanout otherwise.
func NewBroadcaster(amqpURL, exchange string, fanout Fanout) Broadcaster {
	if amqpURL == "" {
		log.Printf("realtime broadcaster local: empty amqp url")
		return &LocalBroadcaster{fanout: fanout}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Printf("realtime broadcaster local: %v", err)
		return &LocalBroadcaster{fanout: fanout}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("realtime broadcaster local: %v", err)
		_ = conn.Close()
		return &LocalBroadcaster{fanout: fanout}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("realtime broadcaster local: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return &LocalBroadcaster{fanout: fanout}
	}

	log.Printf("realtime broadcaster amqp exchange=%s", exchange)
	return &AMQPBroadcaster{conn: conn, ch: ch, exchange: exchange, fanout: fanout}
}

// Encode builds the wire frame for an item.
func Encode(topic string, item models.ChatItem) ([]byte, error) {
	return json.Marshal(Event{Name: EventNewMessage, Topic: topic, Item: item})
}

// LocalBroadcaster pushes straight into this instance's fanout.
type LocalBroadcaster struct {
	fanout Fanout
}

// NewLocalBroadcaster builds a LocalBroadcaster.
func NewLocalBroadcaster(fanout Fanout) *LocalBroadcaster {
	return &LocalBroadcaster{fanout: fanout}
}

func (b *LocalBroadcaster) Broadcast(ctx context.Context, item models.ChatItem) error {
	topic, ok := TopicFor(item)
	if !ok {
		return nil
	}
	payload, err := Encode(topic, item)
	if err != nil {
		observability.IncBroadcast("local", "error")
		return err
	}
	if b.fanout != nil {
		b.fanout.Publish(topic, payload)
	}
	observability.IncBroadcast("local", "ok")
	return nil
}

func (b *LocalBroadcaster) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBroadcaster) Close() error { return nil }

// AMQPBroadcaster publishes frames to a topic exchange keyed by chat topic and
// relays everything it consumes back into the local fanout.
type AMQPBroadcaster struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	fanout   Fanout
}

func (b *AMQPBroadcaster) Broadcast(ctx context.Context, item models.ChatItem) error {
	topic, ok := TopicFor(item)
	if !ok {
		return nil
	}
	payload, err := Encode(topic, item)
	if err != nil {
		return err
	}

	err = b.ch.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Type:        EventNewMessage,
		Body:        payload,
	})
	if err != nil {
		log.Printf("realtime publish failed topic=%s err=%v", topic, err)
		observability.IncBroadcast("amqp", "error")
		return err
	}
	observability.IncBroadcast("amqp", "ok")
	return nil
}

func (b *AMQPBroadcaster) Run(ctx context.Context) error {
	q, err := b.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare relay queue: %w", err)
	}
	if err := b.ch.QueueBind(q.Name, "#", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind relay queue: %w", err)
	}
	deliveries, err := b.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume relay queue: %w", err)
	}

	log.Printf("realtime relay consuming queue=%s exchange=%s", q.Name, b.exchange)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay deliveries closed")
			}
			if b.fanout != nil {
				b.fanout.Publish(d.RoutingKey, d.Body)
			}
		}
	}
}

func (b *AMQPBroadcaster) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Mode reports the broadcaster mode for logging.
func Mode(b Broadcaster) string {
	switch b.(type) {
	case *AMQPBroadcaster:
		return "amqp"
	case *LocalBroadcaster:
		return "local"
	default:
		return "unknown"
	}
}
