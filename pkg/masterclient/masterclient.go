// Package masterclient wraps mqttclient.Client with the master-control
// role constraints of spec §4.5: fleet-wide order/instantActions
// publication, per-AGV subscription wiring, and a tracked AgvIdMap of
// connection state with a chained trackAgvs callback registration that
// dispatches an immediate synchronous snapshot to new subscribers.
package masterclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/daohu527/vlink/pkg/agvidmap"
	"github.com/daohu527/vlink/pkg/mqttclient"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// TrackAgvsFunc is invoked once immediately with every currently known
// AGV's connection state, and again on every subsequent change (spec
// §4.5 "trackAgvs").
type TrackAgvsFunc func(id vda5050.AgvId, conn vda5050.Connection)

// Client is the master-control-side facade over mqttclient.Client.
type Client struct {
	inner *mqttclient.Client
	conns *agvidmap.Map[vda5050.Connection]

	mu        sync.Mutex
	observers []TrackAgvsFunc
}

// New constructs a MasterControlClient bound to a specific interface,
// version and broker; per-AGV topics are addressed by AgvId on each
// call (spec §4.4 "one client, many AGVs").
func New(cfg mqttclient.Config, log zerolog.Logger) (*Client, error) {
	inner, err := mqttclient.New(cfg, mqttclient.MasterRoleConfig(), vda5050.AgvId{}, log)
	if err != nil {
		return nil, err
	}
	c := &Client{inner: inner, conns: agvidmap.New[vda5050.Connection]()}
	if _, err := inner.Subscribe(vda5050.TopicConnection, vda5050.AgvId{}, c.handleConnection); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) handleConnection(_ vda5050.Topic, subject vda5050.AgvId, payload []byte) {
	var msg vda5050.ConnectionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	id := vda5050.AgvId{Manufacturer: msg.Manufacturer, SerialNumber: msg.SerialNumber}
	if !id.Valid() {
		id = subject
	}
	c.conns.Set(id, msg.Connection)
	c.notify(id, msg.Connection)
}

// TrackAgvs registers fn and immediately invokes it once per currently
// known AGV, then again on every future connection-state change (spec
// §4.5). Each registration is chained onto the last, mirroring
// teleoperation-style listener chaining.
func (c *Client) TrackAgvs(fn TrackAgvsFunc) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()

	for _, e := range c.conns.Entries() {
		fn(e.ID, e.Value)
	}
}

func (c *Client) notify(id vda5050.AgvId, conn vda5050.Connection) {
	c.mu.Lock()
	observers := append([]TrackAgvsFunc(nil), c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(id, conn)
	}
}

// Start connects to the broker.
func (c *Client) Start(ctx context.Context) error { return c.inner.Start(ctx) }

// Stop disconnects from the broker.
func (c *Client) Stop() { c.inner.Stop(nil) }

// AssignOrder publishes order to the given AGV's "order" topic.
func (c *Client) AssignOrder(id vda5050.AgvId, order vda5050.Order) error {
	msg := &vda5050.OrderMessage{Order: order}
	return c.inner.Publish(id, vda5050.TopicOrder, msg, mqttclient.PublishOptions{QoS: 1, Retained: true})
}

// SendInstantActions publishes a batch of instant actions to id.
func (c *Client) SendInstantActions(id vda5050.AgvId, actions vda5050.InstantActions) error {
	msg := &vda5050.InstantActionsMessage{InstantActions: actions}
	return c.inner.Publish(id, vda5050.TopicInstantActions, msg, mqttclient.PublishOptions{QoS: 1})
}

// StateHandler is notified of a state update from any tracked AGV.
type StateHandler func(id vda5050.AgvId, state vda5050.State)

// SubscribeStates wires h to every AGV's "state" topic.
func (c *Client) SubscribeStates(h StateHandler) (string, error) {
	return c.inner.Subscribe(vda5050.TopicState, vda5050.AgvId{}, func(_ vda5050.Topic, subject vda5050.AgvId, payload []byte) {
		var msg vda5050.StateMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h(subject, msg.State)
	})
}

// VisualizationHandler is notified of a visualization update.
type VisualizationHandler func(id vda5050.AgvId, viz vda5050.Visualization)

// SubscribeVisualization wires h to every AGV's "visualization" topic.
func (c *Client) SubscribeVisualization(h VisualizationHandler) (string, error) {
	return c.inner.Subscribe(vda5050.TopicVisualization, vda5050.AgvId{}, func(_ vda5050.Topic, subject vda5050.AgvId, payload []byte) {
		var msg vda5050.VisualizationMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h(subject, msg.Visualization)
	})
}

// FactsheetHandler is notified of a factsheet update.
type FactsheetHandler func(id vda5050.AgvId, fs vda5050.Factsheet)

// SubscribeFactsheet wires h to every AGV's "factsheet" topic.
func (c *Client) SubscribeFactsheet(h FactsheetHandler) (string, error) {
	return c.inner.Subscribe(vda5050.TopicFactsheet, vda5050.AgvId{}, func(_ vda5050.Topic, subject vda5050.AgvId, payload []byte) {
		var msg vda5050.FactsheetMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		h(subject, msg.Factsheet)
	})
}

// Connections returns a snapshot of every tracked AGV's last known
// connection state, in first-seen order.
func (c *Client) Connections() []agvidmap.Entry[vda5050.Connection] {
	return c.conns.Entries()
}
