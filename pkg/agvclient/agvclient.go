// Package agvclient wraps mqttclient.Client with the AGV-side role
// constraints and publication conveniences of spec §4.5: connection
// lifecycle (online/offline via last will), and the Publisher interface
// agvcontroller.Controller needs.
package agvclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/daohu527/vlink/pkg/mqttclient"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// Client is the AGV-side facade over mqttclient.Client.
type Client struct {
	inner *mqttclient.Client
	id    vda5050.AgvId
}

// New constructs an AgvClient. The last will is set to a CONNECTIONBROKEN
// connection message so the broker publishes it on ungraceful disconnect
// (spec §4.3 "Connection").
func New(cfg mqttclient.Config, id vda5050.AgvId, log zerolog.Logger) (*Client, error) {
	will, err := json.Marshal(vda5050.ConnectionMessage{
		Connection: vda5050.Connection{ConnectionState: vda5050.ConnectionBroken},
	})
	if err != nil {
		return nil, fmt.Errorf("agvclient: marshal last will: %w", err)
	}
	cfg.LastWill = &mqttclient.LastWill{
		Topic:    vda5050.TopicConnection,
		Payload:  will,
		QoS:      1,
		Retained: true,
	}

	inner, err := mqttclient.New(cfg, mqttclient.AgvRoleConfig(), id, log)
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner, id: id}, nil
}

// Start connects to the broker and publishes ONLINE once connected.
func (c *Client) Start(ctx context.Context) error {
	c.inner.Observe(func(s mqttclient.ConnState) {
		if s == mqttclient.StateOnline {
			_ = c.PublishConnection(vda5050.ConnectionOnline)
		}
	})
	return c.inner.Start(ctx)
}

// Stop publishes OFFLINE (a graceful disconnect, unlike the last will's
// CONNECTIONBROKEN) and disconnects.
func (c *Client) Stop() {
	c.inner.Stop(func() {
		_ = c.PublishConnection(vda5050.ConnectionOffline)
		time.Sleep(50 * time.Millisecond) // best-effort flush before disconnect
	})
}

func (c *Client) PublishConnection(state vda5050.ConnectionState) error {
	msg := &vda5050.ConnectionMessage{Connection: vda5050.Connection{
		ConnectionState: state,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}}
	return c.inner.Publish(c.id, vda5050.TopicConnection, msg, mqttclient.PublishOptions{QoS: 1, Retained: true})
}

// PublishState implements agvcontroller.Publisher.
func (c *Client) PublishState(state *vda5050.State) error {
	msg := &vda5050.StateMessage{State: *state}
	return c.inner.Publish(c.id, vda5050.TopicState, msg, mqttclient.PublishOptions{QoS: 1, Retained: true})
}

// PublishVisualization implements agvcontroller.Publisher. Visualization
// is best-effort and dropped while offline rather than queued.
func (c *Client) PublishVisualization(viz *vda5050.Visualization) error {
	msg := &vda5050.VisualizationMessage{Visualization: *viz}
	return c.inner.Publish(c.id, vda5050.TopicVisualization, msg, mqttclient.PublishOptions{QoS: 0, DropIfOffline: true})
}

// PublishFactsheet implements agvcontroller.Publisher.
func (c *Client) PublishFactsheet(fs *vda5050.Factsheet) error {
	msg := &vda5050.FactsheetMessage{Factsheet: *fs}
	return c.inner.Publish(c.id, vda5050.TopicFactsheet, msg, mqttclient.PublishOptions{QoS: 1, Retained: true})
}

// OrderHandler is notified of an incoming order on the "order" topic.
type OrderHandler func(vda5050.Order)

// InstantActionsHandler is notified of an incoming instantActions batch.
type InstantActionsHandler func(vda5050.InstantActions)

// SubscribeOrder wires h to the AGV's own "order" topic.
func (c *Client) SubscribeOrder(h OrderHandler) (string, error) {
	return c.inner.Subscribe(vda5050.TopicOrder, c.id, func(_ vda5050.Topic, _ vda5050.AgvId, payload []byte) {
		var msg vda5050.OrderMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h(msg.Order)
	})
}

// SubscribeInstantActions wires h to the AGV's own "instantActions" topic.
func (c *Client) SubscribeInstantActions(h InstantActionsHandler) (string, error) {
	return c.inner.Subscribe(vda5050.TopicInstantActions, c.id, func(_ vda5050.Topic, _ vda5050.AgvId, payload []byte) {
		var msg vda5050.InstantActionsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h(msg.InstantActions)
	})
}

// Observe forwards connection-state observation to the underlying client.
func (c *Client) Observe(fn func(mqttclient.ConnState)) { c.inner.Observe(fn) }
