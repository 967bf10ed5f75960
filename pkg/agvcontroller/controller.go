// Package agvcontroller implements the order/action execution engine that
// runs on the AGV side: order intake, node/edge traversal sequencing,
// blocking-aware action dispatch, pause/cancel, instant actions, and
// periodic state/visualization publication (spec §4.3).
package agvcontroller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/daohu527/vlink/pkg/adapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// Config configures a Controller (spec §6 "Configuration (AGV controller)").
type Config struct {
	AgvID vda5050.AgvId

	// ExpectedAdapterAPIVersion is compared against the adapter's
	// APIVersion(); a mismatch fails New.
	ExpectedAdapterAPIVersion uint

	// PublishStateInterval is the maximum period between state
	// publications (default 30s).
	PublishStateInterval time.Duration

	// PublishVisualizationInterval is the visualization publication
	// period (default 1s; 0 disables).
	PublishVisualizationInterval time.Duration

	// FinalInstantActionStateChangePublishCount is how many state
	// publications an instant action's terminal ActionState survives
	// before being purged (default 5, minimum 1).
	FinalInstantActionStateChangePublishCount int

	// The first node of a brand-new (non-stitching) order is always checked
	// with the adapter's IsNodeWithinDeviationRange; no Config field turns
	// that check off.
}

func (c Config) withDefaults() Config {
	if c.PublishStateInterval == 0 {
		c.PublishStateInterval = 30 * time.Second
	}
	if c.PublishVisualizationInterval == 0 {
		c.PublishVisualizationInterval = 1 * time.Second
	}
	if c.FinalInstantActionStateChangePublishCount == 0 {
		c.FinalInstantActionStateChangePublishCount = 5
	} else if c.FinalInstantActionStateChangePublishCount < 1 {
		c.FinalInstantActionStateChangePublishCount = 1
	}
	return c
}

// Publisher is the narrow slice of AgvClient the controller needs, kept
// as its own interface so this package does not depend on mqttclient.
type Publisher interface {
	PublishState(state *vda5050.State) error
	PublishVisualization(viz *vda5050.Visualization) error
	PublishFactsheet(fs *vda5050.Factsheet) error
}

// actionTarget records which node or edge an active order-action belongs
// to, so the controller can remove it from nodeStates/edgeStates and
// route ActionContext callbacks correctly.
type actionTarget struct {
	action   vda5050.Action
	nodeID   string // set if this is a node action
	edgeID   string // set if this is an edge action
}

// instantRecord tracks a single instant action from issuance through its
// post-terminal retention window (spec §3 "Instant action state").
type instantRecord struct {
	action              vda5050.Action
	state               vda5050.ActionState
	publishesSinceTerminal int
}

// Controller is the AGV order/action state machine. All exported methods
// are safe for concurrent use; adapter callbacks re-enter the controller
// under its lock (spec §5).
type Controller struct {
	cfg       Config
	ad        adapter.AgvAdapter
	publisher Publisher
	log       zerolog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	currentOrder  *vda5050.Order
	currentState  *vda5050.State
	pendingCancel bool
	cancelCh      chan struct{}   // closed once per order, on cancelOrder
	cancelAction  *vda5050.Action // the cancelOrder instant action awaiting its FINISHED report
	pausedNode    *vda5050.Node   // read by acceptStitchedOrder; nothing assigns it, so node entry is never suspended for pause

	targets      map[string]*actionTarget     // actionId -> target, for the current order
	actionStates map[string]vda5050.ActionState // actionId -> latest reported ActionState

	instantQueue []*instantRecord // active (non-purged) instant actions, FIFO

	stateTimer     *time.Timer
	vizTicker      *time.Ticker
	stopPublishing chan struct{}

	factsheetSupported bool // v >= 2.0; true by default, changed by the caller via SetFactsheetSupported
	factsheet          *vda5050.Factsheet
}

// SetFactsheet stores the static factsheet published on factsheetRequest
// (spec §4.3, §6). Start does not publish it.
func (c *Controller) SetFactsheet(fs *vda5050.Factsheet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factsheet = fs
}

// New constructs a Controller. It fails if ad's APIVersion does not match
// cfg.ExpectedAdapterAPIVersion (spec §6).
func New(cfg Config, ad adapter.AgvAdapter, publisher Publisher, log zerolog.Logger) (*Controller, error) {
	cfg = cfg.withDefaults()
	if ad.APIVersion() != cfg.ExpectedAdapterAPIVersion {
		return nil, fmt.Errorf("agvcontroller: adapter API version %d != expected %d", ad.APIVersion(), cfg.ExpectedAdapterAPIVersion)
	}
	c := &Controller{
		cfg:       cfg,
		ad:        ad,
		publisher: publisher,
		log:       log,
		currentState: &vda5050.State{
			OperatingMode: vda5050.OperatingAutomatic,
			SafetyState:   vda5050.SafetyState{EStop: vda5050.EStopNone},
		},
		targets:            make(map[string]*actionTarget),
		actionStates:       make(map[string]vda5050.ActionState),
		factsheetSupported: true,
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// SetFactsheetSupported toggles whether factsheetRequest is honored (v>=2.0)
// or rejected (v=1.1), per spec §4.3.
func (c *Controller) SetFactsheetSupported(supported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factsheetSupported = supported
}

// Start attaches the adapter and begins the periodic publication timers.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	snapshot := c.currentState.Clone()
	c.mu.Unlock()

	if err := c.ad.Attach(adapter.AttachContext{InitialState: *snapshot}); err != nil {
		return fmt.Errorf("agvcontroller: attach: %w", err)
	}

	c.stopPublishing = make(chan struct{})
	go c.runStateTimer()
	if c.cfg.PublishVisualizationInterval > 0 {
		go c.runVisualizationTimer()
	}
	return nil
}

// Stop detaches the adapter and halts the publication timers. Any order
// goroutine waiting on a base extension is woken and exits.
func (c *Controller) Stop() {
	if c.stopPublishing != nil {
		close(c.stopPublishing)
	}
	c.mu.Lock()
	c.pendingCancel = true
	c.cond.Broadcast()
	snapshot := c.currentState.Clone()
	c.mu.Unlock()
	c.ad.Detach(adapter.DetachContext{FinalState: *snapshot})
}

// CurrentState returns an immutable deep-copy snapshot of the AGV's
// current state (spec §3 "Ownership").
func (c *Controller) CurrentState() *vda5050.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentState.Clone()
}

func (c *Controller) runStateTimer() {
	ticker := time.NewTicker(c.cfg.PublishStateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPublishing:
			return
		case <-ticker.C:
			c.publishState()
		}
	}
}

func (c *Controller) runVisualizationTimer() {
	ticker := time.NewTicker(c.cfg.PublishVisualizationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPublishing:
			return
		case <-ticker.C:
			c.publishVisualization()
		}
	}
}

// publishState sends the current state immediately, then expires
// post-terminal instant-action state/errors whose publish count reached
// the configured threshold (spec §4.3 "State publication").
func (c *Controller) publishState() {
	c.mu.Lock()
	snapshot := c.currentState.Clone()
	c.mu.Unlock()

	if err := c.publisher.PublishState(snapshot); err != nil {
		c.log.Error().Err(err).Msg("publish state failed")
	}

	c.mu.Lock()
	c.expireInstantActionsLocked()
	c.mu.Unlock()
}

func (c *Controller) publishVisualization() {
	c.mu.Lock()
	viz := &vda5050.Visualization{
		AgvPosition: c.currentState.AgvPosition,
		Velocity:    c.currentState.Velocity,
	}
	c.mu.Unlock()

	if err := c.publisher.PublishVisualization(viz); err != nil {
		c.log.Debug().Err(err).Msg("publish visualization failed (dropIfOffline)")
	}
}

// expireInstantActionsLocked removes instant actions whose terminal
// status has now been published max(1, FinalInstantActionStateChangePublishCount)
// times (spec §4.3, §8).
func (c *Controller) expireInstantActionsLocked() {
	purged := make(map[string]bool)
	kept := make([]*instantRecord, 0, len(c.instantQueue))
	for _, rec := range c.instantQueue {
		if rec.state.ActionStatus.Terminal() {
			rec.publishesSinceTerminal++
			if rec.publishesSinceTerminal >= c.cfg.FinalInstantActionStateChangePublishCount {
				purged[rec.action.ActionID] = true
				continue // drop from both the queue and currentState
			}
		}
		kept = append(kept, rec)
	}
	c.instantQueue = kept

	if len(purged) > 0 {
		remaining := c.currentState.Errors[:0]
		for _, e := range c.currentState.Errors {
			if actionID, ok := e.Reference(vda5050.RefActionID); ok && purged[actionID] {
				continue
			}
			remaining = append(remaining, e)
		}
		c.currentState.Errors = remaining
	}

	c.rebuildActionStatesLocked()
}

// rebuildActionStatesLocked recomputes currentState.ActionStates as the
// union of active order-action states and retained instant-action states
// (spec §4.3 core invariant).
func (c *Controller) rebuildActionStatesLocked() {
	var states []vda5050.ActionState
	for _, id := range c.orderedTargetIDsLocked() {
		t := c.targets[id]
		states = append(states, c.orderActionStateLocked(t))
	}
	for _, rec := range c.instantQueue {
		states = append(states, rec.state)
	}
	c.currentState.ActionStates = states
}

// orderedTargetIDsLocked returns target action ids in a stable order
// derived from the current order's node/edge declaration order, so
// ActionStates publication order is deterministic.
func (c *Controller) orderedTargetIDsLocked() []string {
	var ids []string
	if c.currentOrder == nil {
		return ids
	}
	for _, n := range c.currentOrder.Nodes {
		for _, a := range n.Actions {
			if _, ok := c.targets[a.ActionID]; ok {
				ids = append(ids, a.ActionID)
			}
		}
	}
	for _, e := range c.currentOrder.Edges {
		for _, a := range e.Actions {
			if _, ok := c.targets[a.ActionID]; ok {
				ids = append(ids, a.ActionID)
			}
		}
	}
	return ids
}

func (c *Controller) orderActionStateLocked(t *actionTarget) vda5050.ActionState {
	if s, ok := c.actionStates[t.action.ActionID]; ok {
		return s
	}
	return vda5050.ActionState{ActionID: t.action.ActionID, ActionType: t.action.ActionType, ActionStatus: vda5050.ActionWaiting}
}

// updateActionStateLocked records the latest ActionState for actionID
// (last write wins) and appends the reported errors to
// currentState.Errors as given; errors are not deduplicated.
func (c *Controller) updateActionStateLocked(actionID string, s vda5050.ActionState, errs []vda5050.Error) {
	c.actionStates[actionID] = s
	if len(errs) > 0 {
		c.currentState.Errors = append(c.currentState.Errors, errs...)
	}
	c.rebuildActionStatesLocked()
}

// clearActionStateLocked drops a single order-action's recorded state.
func (c *Controller) clearActionStateLocked(actionID string) {
	delete(c.actionStates, actionID)
}
