package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const exchangeName = "distributor.direct"

// AMQPConnector talks to distributor applications over a broker: callbacks
// arrive on the agent's queue, registration requests go out to the selected
// distributor's queue.
type AMQPConnector struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	logger   *slog.Logger
	handler  Handler

	mu           sync.Mutex
	distributors []string
	selected     string
	acked        string
	instance     string
}

func NewAMQPConnector(conn *amqp.Connection, queue string, prefetch int, distributors []string, handler Handler, logger *slog.Logger) *AMQPConnector {
	if prefetch <= 0 {
		prefetch = 10
	}
	if queue == "" {
		queue = "agent.callbacks"
	}
	return &AMQPConnector{
		conn:         conn,
		queue:        queue,
		prefetch:     prefetch,
		logger:       logger,
		handler:      handler,
		distributors: distributors,
		instance:     uuid.NewString(),
	}
}

// SetHandler installs the callback handler. The engine is constructed
// after the connector, so wiring happens in two steps.
func (c *AMQPConnector) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *AMQPConnector) Distributors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.distributors...)
}

func (c *AMQPConnector) AckDistributor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked
}

func (c *AMQPConnector) SaveDistributor(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = id
}

// RegisterApp publishes a registration request to the selected distributor.
func (c *AMQPConnector) RegisterApp(ctx context.Context) error {
	c.mu.Lock()
	selected := c.selected
	instance := c.instance
	c.mu.Unlock()
	if selected == "" {
		return fmt.Errorf("no distributor selected")
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(map[string]string{
		"type":     "register",
		"instance": instance,
		"reply_to": c.queue,
	})
	if err != nil {
		return err
	}
	return ch.Publish(
		exchangeName,
		selected,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Start consumes distributor callbacks until the context is cancelled.
func (c *AMQPConnector) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := c.handleDelivery(ctx, msg); err != nil {
				c.logger.Error("callback handling failed", slog.Any("error", err))
			}
		}
	}
}

func (c *AMQPConnector) setupQueue(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		exchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(
		c.queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	return ch.QueueBind(
		c.queue,
		c.queue,
		exchangeName,
		false,
		nil,
	)
}

func (c *AMQPConnector) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var cb Callback
	if err := json.Unmarshal(msg.Body, &cb); err != nil {
		_ = msg.Reject(false)
		return fmt.Errorf("unmarshal callback: %w", err)
	}
	c.dispatch(ctx, cb)
	return msg.Ack(false)
}

func (c *AMQPConnector) dispatch(ctx context.Context, cb Callback) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		c.logger.Warn("callback dropped, no handler installed", slog.String("type", cb.Type))
		return
	}
	switch cb.Type {
	case CallbackNewEndpoint:
		c.recordAck(cb.Distributor)
		handler.OnNewEndpoint(ctx, cb.Endpoint, cb.Instance)
	case CallbackUnregistered:
		c.clearAck()
		handler.OnUnregistered(ctx, cb.Instance)
	case CallbackRegistrationFailed:
		handler.OnRegistrationFailed(ctx, cb.Instance)
	default:
		c.logger.Warn("unknown callback type", slog.String("type", cb.Type))
	}
}

func (c *AMQPConnector) recordAck(distributor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if distributor != "" {
		c.acked = distributor
		return
	}
	c.acked = c.selected
}

func (c *AMQPConnector) clearAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = ""
}

var _ Connector = (*AMQPConnector)(nil)
