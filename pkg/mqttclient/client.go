// Package mqttclient implements the shared VDA 5050 transport layer
// (spec §4.2): connection lifecycle, publish/subscribe, offline
// buffering, header stamping, last-will registration, and schema-gated
// validation, built on top of github.com/eclipse/paho.mqtt.golang the
// same way the teacher's vehicle.Agent and controlcenter.Server each own
// a single mqtt.Client.
package mqttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/daohu527/vlink/pkg/schema"
	"github.com/daohu527/vlink/pkg/security"
	"github.com/daohu527/vlink/pkg/subscription"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// ConnState is a value of the client lifecycle state machine of spec
// §4.2: Stopped -> Connecting -> Online <-> Offline -> Stopping -> Stopped.
type ConnState int

const (
	StateStopped ConnState = iota
	StateConnecting
	StateOnline
	StateOffline
	StateStopping
)

func (s ConnState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateConnecting:
		return "Connecting"
	case StateOnline:
		return "Online"
	case StateOffline:
		return "Offline"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// ObserverFunc is called on every connection-state transition. Initial
// dispatch to a newly registered observer is immediate and synchronous
// with the current state (spec §4.2).
type ObserverFunc func(ConnState)

// LastWill configures the retained message the broker publishes on the
// client's behalf if the connection drops uncleanly (spec §6).
type LastWill struct {
	Topic    vda5050.Topic
	Payload  []byte
	QoS      byte
	Retained bool
}

// RoleConfig constrains which topics a Client may publish or subscribe
// to, enforced by spec §4.2 "Role validation". AgvRoleConfig and
// MasterRoleConfig are mirror images of each other.
type RoleConfig struct {
	Outbound map[vda5050.Topic]bool
	Inbound  map[vda5050.Topic]bool
}

// AgvRoleConfig is the direction policy for the AGV side (spec §6).
func AgvRoleConfig() RoleConfig {
	return RoleConfig{
		Outbound: topicSet(vda5050.TopicConnection, vda5050.TopicState, vda5050.TopicVisualization, vda5050.TopicFactsheet),
		Inbound:  topicSet(vda5050.TopicOrder, vda5050.TopicInstantActions),
	}
}

// MasterRoleConfig is the direction policy for the master-control side
// (spec §6), the mirror of AgvRoleConfig.
func MasterRoleConfig() RoleConfig {
	return RoleConfig{
		Outbound: topicSet(vda5050.TopicOrder, vda5050.TopicInstantActions),
		Inbound:  topicSet(vda5050.TopicConnection, vda5050.TopicState, vda5050.TopicVisualization, vda5050.TopicFactsheet),
	}
}

func topicSet(topics ...vda5050.Topic) map[vda5050.Topic]bool {
	out := make(map[vda5050.Topic]bool, len(topics))
	for _, t := range topics {
		out[t] = true
	}
	return out
}

// Config holds the Client's transport and protocol configuration.
type Config struct {
	BrokerURL    string
	ClientID     string
	Interface    string // topic-format "interface" segment, e.g. "uagv"
	MajorVersion string // topic-format "majorVersion" segment, e.g. "2"
	Version      string // full VDA 5050 version stamped into every header, e.g. "2.0.0"

	TopicTemplate string // defaults to subscription.DefaultTemplate

	KeepAlive       time.Duration // default 15s
	ReconnectPeriod time.Duration // 0 means the 1s default; a negative value disables reconnect
	ConnectTimeout  time.Duration // default 30s

	ValidateOutbound bool
	ValidateInbound  bool

	LastWill *LastWill

	// TLS mutual-auth material; when all three are set the broker
	// connection is upgraded to TLS 1.3 client auth (spec §6 "Transport
	// security"). Leave empty for a plaintext broker (tests, local dev).
	CertFile string
	KeyFile  string
	CAFile   string
}

func (c Config) withDefaults() Config {
	if c.KeepAlive == 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.ReconnectPeriod == 0 {
		c.ReconnectPeriod = 1 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.TopicTemplate == "" {
		c.TopicTemplate = subscription.DefaultTemplate
	}
	return c
}

// pendingPublish is a queued outbound message waiting for the connection
// to come back online (spec §4.2 "Publish ... default is queue-for-later").
type pendingPublish struct {
	brokerTopic string
	payload     []byte
	qos         byte
	retained    bool
}

// Client is the shared VDA 5050 MQTT transport. agvclient.Client and
// masterclient.Client each wrap one (spec §4.5).
type Client struct {
	cfg  Config
	role RoleConfig
	id   vda5050.AgvId
	log  zerolog.Logger

	format    *subscription.Format
	subs      *subscription.Manager
	headerIDs *vda5050.HeaderCounter
	validator *schema.Validator

	mqttClient mqtt.Client

	mu       sync.Mutex
	state    ConnState
	observer ObserverFunc
	pending  []pendingPublish
}

// New creates a Client. id fills the manufacturer/serialNumber segments
// of the last-will topic: an AgvClient passes the AGV's own id, a
// MasterControlClient an empty one. Publish topics take those segments
// from each call's subject, and subscriptions wildcard them per call;
// the Interface/MajorVersion segments always come from cfg.
func New(cfg Config, role RoleConfig, id vda5050.AgvId, log zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()

	format, err := subscription.Compile(cfg.TopicTemplate)
	if err != nil {
		return nil, fmt.Errorf("mqttclient: %w", err)
	}

	var validator *schema.Validator
	if cfg.ValidateOutbound || cfg.ValidateInbound {
		validator, err = schema.New(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("mqttclient: %w", err)
		}
	}

	return &Client{
		cfg:       cfg,
		role:      role,
		id:        id,
		log:       log,
		format:    format,
		subs:      subscription.NewManager(format, cfg.Interface, cfg.MajorVersion),
		headerIDs: vda5050.NewHeaderCounter(),
		validator: validator,
		state:     StateStopped,
	}, nil
}

// State returns the client's current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observe registers the single connection-state observer, replacing any
// previous one, and immediately invokes it with the current state (spec
// §4.2).
func (c *Client) Observe(fn ObserverFunc) {
	c.mu.Lock()
	c.observer = fn
	state := c.state
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	obs := c.observer
	c.mu.Unlock()
	if obs != nil {
		obs(s)
	}
}

// Start connects to the broker, registers the last will (if configured),
// and on success resubscribes every retained broker topic in one batch
// before flushing queued publishes (spec §4.2 "Start").
func (c *Client) Start(ctx context.Context) error {
	c.setState(StateConnecting)

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(false).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetAutoReconnect(c.cfg.ReconnectPeriod > 0).
		SetConnectRetry(c.cfg.ReconnectPeriod > 0).
		SetConnectRetryInterval(c.cfg.ReconnectPeriod).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if c.cfg.LastWill != nil {
		opts.SetWill(c.brokerTopicFor(c.cfg.LastWill.Topic), string(c.cfg.LastWill.Payload), c.cfg.LastWill.QoS, c.cfg.LastWill.Retained)
	}

	if c.cfg.CertFile != "" && c.cfg.KeyFile != "" && c.cfg.CAFile != "" {
		tlsCfg, err := security.ClientTLSConfig(c.cfg.CertFile, c.cfg.KeyFile, c.cfg.CAFile)
		if err != nil {
			c.setState(StateStopped)
			return fmt.Errorf("mqttclient: tls: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		c.setState(StateStopped)
		return fmt.Errorf("mqttclient: connect timed out after %s", c.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.setState(StateStopped)
		return fmt.Errorf("mqttclient: connect: %w", err)
	}
	c.mqttClient = client
	return nil
}

// UseClient injects a pre-configured mqtt.Client, used by tests and by
// callers that need custom transport setup (mirrors the teacher's
// ConnectWithClient).
func (c *Client) UseClient(mc mqtt.Client) {
	c.mqttClient = mc
	c.onConnect(mc)
}

func (c *Client) onConnect(mc mqtt.Client) {
	c.log.Info().Msg("connected to broker")
	c.resubscribeAll(mc)
	c.flushPending(mc)
	c.setState(StateOnline)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn().Err(err).Msg("connection lost")
	c.setState(StateOffline)
}

func (c *Client) resubscribeAll(mc mqtt.Client) {
	for _, topic := range c.subs.BrokerTopics() {
		token := mc.Subscribe(topic, 1, c.dispatch)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
}

func (c *Client) flushPending(mc mqtt.Client) {
	c.mu.Lock()
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range queued {
		token := mc.Publish(p.brokerTopic, p.qos, p.retained, p.payload)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error().Err(err).Str("topic", p.brokerTopic).Msg("queued publish failed")
		}
	}
}

// Stop tears down the connection cooperatively: onStopping (if set)
// completes first, then the broker connection is closed and
// subscriptions are cleared (spec §5 "Cancellation/timeouts").
func (c *Client) Stop(onStopping func()) {
	c.setState(StateStopping)
	if onStopping != nil {
		onStopping()
	}
	if c.mqttClient != nil {
		c.mqttClient.Disconnect(250)
	}
	c.subs.Clear()
	c.setState(StateStopped)
}

func (c *Client) brokerTopicFor(topic vda5050.Topic) string {
	return c.format.Build(subscription.Fields{
		Interface:    c.cfg.Interface,
		MajorVersion: c.cfg.MajorVersion,
		Manufacturer: c.id.Manufacturer,
		SerialNumber: c.id.SerialNumber,
		Topic:        string(topic),
	})
}

// PublishOptions configures a single Publish call.
type PublishOptions struct {
	QoS           byte
	Retained      bool
	DropIfOffline bool // discard instead of queuing when not Online
}

// ErrClientStopped is returned synchronously by Publish/Subscribe when
// the client is not running (spec §7 "Programming errors").
var ErrClientStopped = fmt.Errorf("mqttclient: client is stopped")

// Publish stamps msg's header, validates its wire direction and (if
// outbound validation is enabled) its payload, then either sends
// immediately or queues/drops it per opts, depending on connection state
// (spec §4.2 "Publish"). msg is mutated in place with the stamped header,
// so the caller's pointer reflects "the full headered object as sent"
// once Publish returns.
func (c *Client) Publish(subject vda5050.AgvId, topic vda5050.Topic, msg vda5050.Envelope, opts PublishOptions) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateStopped || state == StateStopping {
		return ErrClientStopped
	}
	if !c.role.Outbound[topic] {
		return fmt.Errorf("mqttclient: topic %q is not publishable by this role", topic)
	}

	brokerTopic := c.format.Build(subscription.Fields{
		Interface:    c.cfg.Interface,
		MajorVersion: c.cfg.MajorVersion,
		Manufacturer: subject.Manufacturer,
		SerialNumber: subject.SerialNumber,
		Topic:        string(topic),
	})
	if err := subscription.CheckLength(brokerTopic); err != nil {
		return err
	}

	h := msg.GetHeader()
	h.HeaderID = c.headerIDs.Next(topic)
	msg.SetHeader(h)
	h = msg.GetHeader()
	h.Stamp(subject, c.cfg.Version, time.Now())
	msg.SetHeader(h)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqttclient: marshal: %w", err)
	}

	if c.validator != nil && c.cfg.ValidateOutbound {
		if errs := c.validator.Validate(topic, payload); len(errs) > 0 {
			return fmt.Errorf("mqttclient: outbound validation failed: %v", errs)
		}
	}

	if state != StateOnline {
		if opts.DropIfOffline {
			return nil
		}
		c.mu.Lock()
		c.pending = append(c.pending, pendingPublish{brokerTopic: brokerTopic, payload: payload, qos: opts.QoS, retained: opts.Retained})
		c.mu.Unlock()
		return nil
	}

	token := c.mqttClient.Publish(brokerTopic, opts.QoS, opts.Retained, payload)
	token.Wait()
	return token.Error()
}

// MessageHandler is invoked with the raw JSON payload of a matching
// inbound message, after schema validation has passed.
type MessageHandler func(topic vda5050.Topic, subject vda5050.AgvId, payload []byte)

// Subscribe registers handler for topic from the given (possibly
// wildcarded) subject. It fails synchronously if the client is stopped.
// Offline subscribes are recorded and materialized on next connect (spec
// §4.2 "Subscribe").
func (c *Client) Subscribe(topic vda5050.Topic, subject vda5050.AgvId, handler MessageHandler) (string, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateStopped || state == StateStopping {
		return "", ErrClientStopped
	}
	if !c.role.Inbound[topic] {
		return "", fmt.Errorf("mqttclient: topic %q is not subscribable by this role", topic)
	}

	res, err := c.subs.Add(string(topic), subject.Manufacturer, subject.SerialNumber, func(brokerTopic string, payload []byte) {
		c.handleMatch(topic, payload, handler)
	})
	if err != nil {
		return "", err
	}

	if res.NewBrokerTopic && state == StateOnline && c.mqttClient != nil {
		token := c.mqttClient.Subscribe(res.BrokerTopic, 1, c.dispatch)
		token.Wait()
		if err := token.Error(); err != nil {
			return "", fmt.Errorf("mqttclient: subscribe: %w", err)
		}
	}
	return res.ID, nil
}

func (c *Client) handleMatch(topic vda5050.Topic, payload []byte, handler MessageHandler) {
	var generic struct {
		Manufacturer string `json:"manufacturer"`
		SerialNumber string `json:"serialNumber"`
	}
	_ = json.Unmarshal(payload, &generic)
	handler(topic, vda5050.AgvId{Manufacturer: generic.Manufacturer, SerialNumber: generic.SerialNumber}, payload)
}

// Unsubscribe removes the subscription with the given id, unsubscribing
// from the broker if it was the last one sharing that broker topic.
func (c *Client) Unsubscribe(id string) error {
	res, ok := c.subs.Remove(id)
	if !ok {
		return fmt.Errorf("mqttclient: unknown subscription id %q", id)
	}
	if res.LastGone && c.mqttClient != nil && c.State() == StateOnline {
		token := c.mqttClient.Unsubscribe(res.BrokerTopic)
		token.Wait()
		return token.Error()
	}
	return nil
}

// dispatch is the single paho message handler registered for every
// broker subscription. It parses the logical topic from the broker topic
// string, validates inbound payloads if enabled, and invokes every
// matching handler sequentially -- one message fully dispatched before
// the next (spec §4.2 "Dispatch").
func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	fields, ok := c.format.Parse(msg.Topic())
	if !ok {
		c.log.Warn().Str("topic", msg.Topic()).Msg("dropping message on unparseable topic")
		return
	}
	topic := vda5050.Topic(fields.Topic)

	if c.validator != nil && c.cfg.ValidateInbound {
		if errs := c.validator.Validate(topic, msg.Payload()); len(errs) > 0 {
			c.log.Warn().Str("topic", msg.Topic()).Interface("errors", errs).Msg("dropping invalid inbound message")
			return
		}
	}

	for _, m := range c.subs.Find(fields.Topic, fields.Manufacturer, fields.SerialNumber) {
		m.Handler(msg.Topic(), msg.Payload())
	}
}
