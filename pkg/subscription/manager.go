// Package subscription implements the wildcard-aware subscription trie
// shared by the AGV and master-control Client implementations (spec
// §4.1). It is deliberately transport-agnostic: it only tracks which
// broker topics are wanted and which in-process handlers should run when
// a message matching a given (topic, manufacturer, serialNumber) arrives.
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// Handler is invoked for every inbound message matching a registered
// subscription. The concrete message payload is opaque to the
// subscription manager; callers type-assert or re-dispatch as needed.
type Handler func(brokerTopic string, payload []byte)

// wildcardKey is the trie key used at any level to mean "any value"
// (spec's ⊥).
const wildcardKey = ""

type trieNode struct {
	children map[string]*trieNode
	leaf     *leaf
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

type leaf struct {
	subs        map[string]Handler
	brokerTopic string
}

// record is the reverse index used by Remove to locate a subscription's
// trie path without re-walking from the root.
type record struct {
	topicKey, serialKey, manufacturerKey string
	brokerTopic                          string
}

// Manager is a wildcard-aware trie of subscriptions, keyed in reverse
// path order (topic, serialNumber, manufacturer) as specified in §4.1.
// Every exported method is safe for concurrent use.
type Manager struct {
	format       *Format
	interfaceVal string
	majorVersion string

	mu      sync.Mutex
	root    *trieNode
	byID    map[string]record
}

// NewManager creates a Manager that builds/parses broker topics using
// format, stamping every constructed topic with the given interface name
// and major version (spec §6's "<interface>/v<major>/...").
func NewManager(format *Format, interfaceVal, majorVersion string) *Manager {
	return &Manager{
		format:       format,
		interfaceVal: interfaceVal,
		majorVersion: majorVersion,
		root:         newTrieNode(),
		byID:         make(map[string]record),
	}
}

// AddResult is returned by Add.
type AddResult struct {
	ID             string
	BrokerTopic    string
	NewBrokerTopic bool // true if this is the first subscription sharing BrokerTopic
}

// Add registers handler for messages on topic from the given manufacturer
// and serialNumber (empty string = wildcard at that level, matching any
// value). It assigns a fresh random id and returns the broker-level
// subscription topic that must be subscribed if NewBrokerTopic is true.
func (m *Manager) Add(topic, manufacturer, serialNumber string, handler Handler) (AddResult, error) {
	brokerTopic := m.format.BuildWildcard(Fields{
		Interface:    m.interfaceVal,
		MajorVersion: m.majorVersion,
		Manufacturer: manufacturer,
		SerialNumber: serialNumber,
		Topic:        topic,
	})
	if err := CheckLength(brokerTopic); err != nil {
		return AddResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	topicNode := m.descend(m.root, topic)
	serialNode := m.descend(topicNode, serialNumber)
	manufacturerNode := m.descend(serialNode, manufacturer)

	newBroker := manufacturerNode.leaf == nil
	if newBroker {
		manufacturerNode.leaf = &leaf{subs: make(map[string]Handler), brokerTopic: brokerTopic}
	}

	id := uuid.NewString()
	manufacturerNode.leaf.subs[id] = handler
	m.byID[id] = record{topicKey: topic, serialKey: serialNumber, manufacturerKey: manufacturer, brokerTopic: brokerTopic}

	return AddResult{ID: id, BrokerTopic: brokerTopic, NewBrokerTopic: newBroker}, nil
}

func (m *Manager) descend(n *trieNode, key string) *trieNode {
	child, ok := n.children[key]
	if !ok {
		child = newTrieNode()
		n.children[key] = child
	}
	return child
}

// RemoveResult is returned by Remove.
type RemoveResult struct {
	BrokerTopic string
	LastGone    bool // true if the broker subscription should now be unsubscribed
}

// Remove unregisters the subscription with the given id. It is a no-op
// (returning ok=false) if id is unknown.
func (m *Manager) Remove(id string) (RemoveResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return RemoveResult{}, false
	}
	delete(m.byID, id)

	topicNode, ok := m.root.children[rec.topicKey]
	if !ok {
		return RemoveResult{BrokerTopic: rec.brokerTopic, LastGone: true}, true
	}
	serialNode, ok := topicNode.children[rec.serialKey]
	if !ok {
		return RemoveResult{BrokerTopic: rec.brokerTopic, LastGone: true}, true
	}
	manufacturerNode, ok := serialNode.children[rec.manufacturerKey]
	if !ok || manufacturerNode.leaf == nil {
		return RemoveResult{BrokerTopic: rec.brokerTopic, LastGone: true}, true
	}

	delete(manufacturerNode.leaf.subs, id)
	lastGone := len(manufacturerNode.leaf.subs) == 0
	if lastGone {
		manufacturerNode.leaf = nil
		m.prune(topicNode, serialNode, manufacturerNode, rec)
	}
	return RemoveResult{BrokerTopic: rec.brokerTopic, LastGone: lastGone}, true
}

// prune deletes now-empty trie nodes bottom-up so repeated add/remove
// cycles don't leak memory.
func (m *Manager) prune(topicNode, serialNode, manufacturerNode *trieNode, rec record) {
	if len(manufacturerNode.children) == 0 {
		delete(serialNode.children, rec.manufacturerKey)
	}
	if len(serialNode.children) == 0 {
		delete(topicNode.children, rec.serialKey)
	}
	if len(topicNode.children) == 0 {
		delete(m.root.children, rec.topicKey)
	}
}

// Match is a single matching subscription returned by Find.
type Match struct {
	ID      string
	Handler Handler
}

// Find returns every subscription whose registered path is a
// generalization of (topic, manufacturer, serialNumber): at each trie
// level it descends into both the concrete key and the wildcard ("")
// child, per spec §4.1.
func (m *Manager) Find(topic, manufacturer, serialNumber string) []Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Match
	m.walk(m.root, []string{topic, serialNumber, manufacturer}, 0, &out)
	return out
}

func (m *Manager) walk(n *trieNode, keys []string, depth int, out *[]Match) {
	if depth == len(keys) {
		if n.leaf != nil {
			for id, h := range n.leaf.subs {
				*out = append(*out, Match{ID: id, Handler: h})
			}
		}
		return
	}
	key := keys[depth]
	if child, ok := n.children[key]; ok {
		m.walk(child, keys, depth+1, out)
	}
	if key != wildcardKey {
		if child, ok := n.children[wildcardKey]; ok {
			m.walk(child, keys, depth+1, out)
		}
	}
}

// Clear removes every subscription. Used on client Stop (spec §3
// "Subscriptions ... destroyed by ... client stop").
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = newTrieNode()
	m.byID = make(map[string]record)
}

// BrokerTopics returns the distinct set of broker-level subscription
// strings currently registered, used to resubscribe in one batch after a
// reconnect (spec §4.2 "Start").
func (m *Manager) BrokerTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, rec := range m.byID {
		if !seen[rec.brokerTopic] {
			seen[rec.brokerTopic] = true
			out = append(out, rec.brokerTopic)
		}
	}
	return out
}

// Format exposes the compiled topic Format used to build/parse broker
// topics, so Client can construct publish topics consistently.
func (m *Manager) Format() *Format { return m.format }
