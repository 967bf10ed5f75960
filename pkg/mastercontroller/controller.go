// Package mastercontroller implements the master-control side dual state
// reconstructor (spec §4.4): it assigns orders and instant actions to
// AGVs, reconstructs per-action and per-edge/node traversal events from
// the AGV's State reports, absorbs stitched follow-up orders into the
// base they continue, and reports order-level rejection and completion.
package mastercontroller

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/daohu527/vlink/pkg/shadow"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// Transport is the narrow slice of masterclient.Client the controller
// needs, kept as its own interface so this package does not depend on
// mqttclient/masterclient directly.
type Transport interface {
	AssignOrder(id vda5050.AgvId, order vda5050.Order) error
	SendInstantActions(id vda5050.AgvId, actions vda5050.InstantActions) error
}

// Controller is the master-control order/state engine.
type Controller struct {
	transport Transport
	log       zerolog.Logger

	mu          sync.Mutex
	caches      map[cacheKey]*OrderStateCache      // arena, keyed by (agvId, orderId, orderUpdateId) -- spec §9 "Cyclic references"
	latestByAgv map[vda5050.AgvId]cacheKey         // most recently assigned order per AGV: stitch-link source and rejection fallback
	instantByID map[vda5050.AgvId]map[string]*instantActionCache

	issueSeq    atomic.Uint64
	actionIDSeq atomic.Uint64

	liveness *shadow.Manager

	callbackMu           sync.Mutex
	onActionStateChanged []OnActionStateChangedFunc
	onNodeTraversed      []OnNodeTraversedFunc
	onEdgeTraversing     []OnEdgeTraversingFunc
	onEdgeTraversed      []OnEdgeTraversedFunc
	onOrderProcessed     []OnOrderProcessedFunc
	onActionError        []OnActionErrorFunc
}

// New constructs a Controller.
func New(transport Transport, log zerolog.Logger) *Controller {
	return &Controller{
		transport:   transport,
		log:         log,
		caches:      make(map[cacheKey]*OrderStateCache),
		latestByAgv: make(map[vda5050.AgvId]cacheKey),
		instantByID: make(map[vda5050.AgvId]map[string]*instantActionCache),
		liveness:    shadow.NewManager(),
	}
}

// StaleAgvs returns AGVs that have not reported State within maxAge,
// candidates for an operator alert even if no CONNECTIONBROKEN message
// was received (spec §4.4, grounded on the original digital-twin
// liveness check).
func (c *Controller) StaleAgvs(maxAge time.Duration) []vda5050.AgvId {
	return c.liveness.StaleAgvs(maxAge)
}

// LastState returns the last State reported by id, if any.
func (c *Controller) LastState(id vda5050.AgvId) (vda5050.State, bool) {
	e, ok := c.liveness.Get(id)
	if !ok {
		return vda5050.State{}, false
	}
	return e.State, true
}

// AssignOrder sends a brand-new order to id, starting orderUpdateId at 0,
// and opens an arena entry linked back to whatever order was most
// recently assigned to id so a later State update can absorb it as a
// stitch (spec §4.4 "Assignment"). An identically-keyed order already in
// the arena is discarded rather than resent.
func (c *Controller) AssignOrder(id vda5050.AgvId, order vda5050.Order) error {
	order.OrderUpdateID = 0
	return c.assign(id, order)
}

// StitchOrder sends order as the next update of the order most recently
// assigned to id, with orderUpdateId set to that order's update id plus
// one (spec §4.3 "order stitching"). The caller supplies the full new
// node/edge set including the shared stitch node; the nodes are not
// checked against the AGV's last reported node.
func (c *Controller) StitchOrder(id vda5050.AgvId, order vda5050.Order) error {
	c.mu.Lock()
	key, ok := c.latestByAgv[id]
	c.mu.Unlock()
	if !ok || order.OrderID != key.orderID {
		return fmt.Errorf("mastercontroller: stitched order id %q does not match active order %q", order.OrderID, key.orderID)
	}
	order.OrderUpdateID = key.orderUpdateID + 1
	return c.assign(id, order)
}

func (c *Controller) assign(id vda5050.AgvId, order vda5050.Order) error {
	if err := order.ValidateStructure(); err != nil {
		return fmt.Errorf("mastercontroller: %w", err)
	}
	key := cacheKey{agv: id, orderID: order.OrderID, orderUpdateID: order.OrderUpdateID}

	c.mu.Lock()
	if _, exists := c.caches[key]; exists {
		c.mu.Unlock()
		return nil // identically-keyed order already assigned: discard
	}
	var previous *cacheKey
	if prevKey, ok := c.latestByAgv[id]; ok {
		k := prevKey
		previous = &k
	}
	cache := newOrderStateCache(id, order, previous)
	c.caches[key] = cache
	c.latestByAgv[id] = key
	c.mu.Unlock()

	if err := c.transport.AssignOrder(id, order); err != nil {
		c.mu.Lock()
		delete(c.caches, key)
		if c.latestByAgv[id] == key {
			if previous != nil {
				c.latestByAgv[id] = *previous
			} else {
				delete(c.latestByAgv, id)
			}
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// InitiateInstantActions sends actions to id, assigning each a globally
// unique actionId if it does not already have one, and caches each one
// keyed by actionId and tagged with a monotonic issueRef so a validation
// error that carries no actionId can still be correlated back to this
// issuance (spec §3 "ActionID unique across stitched orders and instant
// actions", §4.4 "Instant actions", §9).
func (c *Controller) InitiateInstantActions(id vda5050.AgvId, actions []vda5050.Action) error {
	issueRef := c.issueSeq.Add(1)

	c.mu.Lock()
	byID := c.instantByID[id]
	if byID == nil {
		byID = make(map[string]*instantActionCache)
		c.instantByID[id] = byID
	}
	for i := range actions {
		if actions[i].ActionID == "" {
			actions[i].ActionID = fmt.Sprintf("ia-%d", c.actionIDSeq.Add(1))
		}
		byID[actions[i].ActionID] = &instantActionCache{action: actions[i], issueRef: issueRef}
	}
	c.mu.Unlock()

	return c.transport.SendInstantActions(id, vda5050.InstantActions{Actions: actions})
}

// CancelOrder is a convenience wrapper issuing the reserved cancelOrder
// instant action.
func (c *Controller) CancelOrder(id vda5050.AgvId) error {
	return c.InitiateInstantActions(id, []vda5050.Action{{ActionType: "cancelOrder", BlockingType: vda5050.BlockingHard}})
}
