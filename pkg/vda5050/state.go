package vda5050

// ActionStatus is the lifecycle status of an ActionState.
type ActionStatus string

const (
	ActionWaiting      ActionStatus = "WAITING"
	ActionInitializing ActionStatus = "INITIALIZING"
	ActionRunning      ActionStatus = "RUNNING"
	ActionPaused       ActionStatus = "PAUSED"
	ActionFinished     ActionStatus = "FINISHED"
	ActionFailed       ActionStatus = "FAILED"
)

// Terminal reports whether status ends the action's lifecycle.
func (s ActionStatus) Terminal() bool {
	return s == ActionFinished || s == ActionFailed
}

// ActionState is the published status of a single action.
type ActionState struct {
	ActionID          string       `json:"actionId"`
	ActionType        string       `json:"actionType"`
	ActionStatus      ActionStatus `json:"actionStatus"`
	ActionDescription string       `json:"actionDescription,omitempty"`
	ResultDescription string       `json:"resultDescription,omitempty"`
}

// NodeState is the published remaining-route entry for a not-yet-traversed
// node.
type NodeState struct {
	NodeID       string        `json:"nodeId"`
	SequenceID   uint32        `json:"sequenceId"`
	Released     bool          `json:"released"`
	NodePosition *NodePosition `json:"nodePosition,omitempty"`
}

// EdgeState is the published remaining-route entry for a not-yet-traversed
// edge.
type EdgeState struct {
	EdgeID      string `json:"edgeId"`
	SequenceID  uint32 `json:"sequenceId"`
	Released    bool   `json:"released"`
	StartNodeID string `json:"startNodeId"`
	EndNodeID   string `json:"endNodeId"`
}

// EStop is the emergency-stop status reported in SafetyState.
type EStop string

const (
	EStopNone     EStop = "NONE"
	EStopManual   EStop = "MANUAL"
	EStopRemote   EStop = "REMOTE"
	EStopAutoack  EStop = "AUTOACK"
)

// SafetyState reports the AGV's safety-relevant sensors.
type SafetyState struct {
	EStop          EStop `json:"eStop"`
	FieldViolation bool  `json:"fieldViolation"`
}

// OperatingMode is the AGV's current control mode.
type OperatingMode string

const (
	OperatingAutomatic     OperatingMode = "AUTOMATIC"
	OperatingSemiautomatic OperatingMode = "SEMIAUTOMATIC"
	OperatingManual        OperatingMode = "MANUAL"
	OperatingService       OperatingMode = "SERVICE"
	OperatingTeleoperation OperatingMode = "TELEOPERATION"
)

// BatteryState reports the AGV's battery and charging status.
type BatteryState struct {
	BatteryCharge float64 `json:"batteryCharge"`
	BatteryVoltage float64 `json:"batteryVoltage,omitempty"`
	Charging       bool    `json:"charging"`
	Reach          uint32  `json:"reach,omitempty"`
}

// AgvPosition is the AGV's self-reported pose.
type AgvPosition struct {
	X                     float64 `json:"x"`
	Y                     float64 `json:"y"`
	Theta                 float64 `json:"theta"`
	MapID                 string  `json:"mapId"`
	PositionInitialized   bool    `json:"positionInitialized"`
	LocalizationScore     float64 `json:"localizationScore,omitempty"`
}

// Velocity is the AGV's current velocity vector.
type Velocity struct {
	Vx      float64 `json:"vx,omitempty"`
	Vy      float64 `json:"vy,omitempty"`
	Omega   float64 `json:"omega,omitempty"`
}

// Load describes a single load carried by the AGV.
type Load struct {
	LoadID        string `json:"loadId,omitempty"`
	LoadType      string `json:"loadType,omitempty"`
	LoadPosition  string `json:"loadPosition,omitempty"`
}

// State is the authoritative AGV snapshot published on topic "state"
// (spec §3). Pointer fields are optional: a nil pointer omits the field
// on publish. The package has no state-merge helper and no sentinel
// value for clearing a field.
type State struct {
	OrderID               string        `json:"orderId"`
	OrderUpdateID         uint32        `json:"orderUpdateId"`
	LastNodeID            string        `json:"lastNodeId"`
	LastNodeSequenceID    uint32        `json:"lastNodeSequenceId"`
	NodeStates            []NodeState   `json:"nodeStates"`
	EdgeStates            []EdgeState   `json:"edgeStates"`
	ActionStates          []ActionState `json:"actionStates"`
	Errors                []Error       `json:"errors"`
	BatteryState          BatteryState  `json:"batteryState"`
	SafetyState           SafetyState   `json:"safetyState"`
	OperatingMode         OperatingMode `json:"operatingMode"`
	Driving               bool          `json:"driving"`
	Paused                *bool         `json:"paused,omitempty"`
	AgvPosition           *AgvPosition  `json:"agvPosition,omitempty"`
	Velocity              *Velocity     `json:"velocity,omitempty"`
	NewBaseRequest        *bool         `json:"newBaseRequest,omitempty"`
	DistanceSinceLastNode *float64      `json:"distanceSinceLastNode,omitempty"`
	Loads                 []Load        `json:"loads,omitempty"`
}

// Clone returns a deep copy of s, used to hand out immutable snapshots to
// external readers (spec §3 "Ownership").
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.NodeStates = append([]NodeState(nil), s.NodeStates...)
	out.EdgeStates = append([]EdgeState(nil), s.EdgeStates...)
	out.ActionStates = append([]ActionState(nil), s.ActionStates...)
	out.Errors = append([]Error(nil), s.Errors...)
	out.Loads = append([]Load(nil), s.Loads...)
	if s.Paused != nil {
		v := *s.Paused
		out.Paused = &v
	}
	if s.AgvPosition != nil {
		v := *s.AgvPosition
		out.AgvPosition = &v
	}
	if s.Velocity != nil {
		v := *s.Velocity
		out.Velocity = &v
	}
	if s.NewBaseRequest != nil {
		v := *s.NewBaseRequest
		out.NewBaseRequest = &v
	}
	if s.DistanceSinceLastNode != nil {
		v := *s.DistanceSinceLastNode
		out.DistanceSinceLastNode = &v
	}
	return &out
}

// Visualization is the lightweight periodic-publication subset of State
// (spec §4.3 "Visualization publication").
type Visualization struct {
	AgvPosition *AgvPosition `json:"agvPosition,omitempty"`
	Velocity    *Velocity    `json:"velocity,omitempty"`
}
