package vda5050

// ErrorType enumerates the wire error kinds an AGV or master can report,
// per spec §6.
type ErrorType string

const (
	ErrorTypeOrder                    ErrorType = "orderError"
	ErrorTypeOrderUpdate               ErrorType = "orderUpdateError"
	ErrorTypeOrderValidation           ErrorType = "orderValidationError"
	ErrorTypeNoRoute                   ErrorType = "noRouteError"
	ErrorTypeValidation                ErrorType = "validationError"
	ErrorTypeOrderAction               ErrorType = "orderActionError"
	ErrorTypeInstantAction             ErrorType = "instantActionError"
	ErrorTypeInstantActionNoOrderToCancel ErrorType = "instantActionNoOrderToCancel"
	ErrorTypeInstantActionValidation   ErrorType = "instantActionValidationError"
)

// orderLevelErrorTypes are the ErrorType values that refer to the order as
// a whole rather than to a specific action; used by the master's
// order-rejection scan (spec §4.4 step 1).
var orderLevelErrorTypes = map[ErrorType]bool{
	ErrorTypeOrder:           true,
	ErrorTypeOrderUpdate:     true,
	ErrorTypeOrderValidation: true,
	ErrorTypeNoRoute:         true,
}

// IsOrderLevel reports whether t refers to the order as a whole (as
// opposed to orderActionError, which refers to a specific action).
func (t ErrorType) IsOrderLevel() bool {
	return orderLevelErrorTypes[t]
}

// ErrorLevel is the severity of a reported Error.
type ErrorLevel string

const (
	ErrorLevelWarning ErrorLevel = "WARNING"
	ErrorLevelFatal   ErrorLevel = "FATAL"
)

// ErrorReference is a single key/value pair pointing at the subject of an
// Error (e.g. {"orderId", "o42"}).
type ErrorReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

// Well-known reference keys used throughout the controller and master.
const (
	RefTopic         = "topic"
	RefOrderID       = "orderId"
	RefOrderUpdateID = "orderUpdateId"
	RefNodeID        = "nodeId"
	RefActionID      = "actionId"

	// RefIssueRef correlates an instantActionValidationError that carries
	// no actionId back to the issuance that produced it; the master
	// controller records one in its cache entry for every action it
	// initiates, and does not include it in the published instantActions
	// (spec §4.4 "Instant actions", §9 "issueRef correlation").
	RefIssueRef = "issueRef"

	// errDescriptionDetailKey is reserved: it is consumed on the sender side
	// to append a colon-separated detail to ErrorDescription and is never
	// serialized as a reference (spec §6).
	errDescriptionDetailKey = "errorDescriptionDetail"
)

// Error is a single reported protocol error, attached to a published
// State's Errors slice.
type Error struct {
	ErrorType        ErrorType        `json:"errorType"`
	ErrorLevel       ErrorLevel       `json:"errorLevel"`
	ErrorReferences  []ErrorReference `json:"errorReferences,omitempty"`
	ErrorDescription string           `json:"errorDescription,omitempty"`
}

// NewError builds an Error, pulling any errorDescriptionDetail reference
// out of refs and appending it to description as ": detail" instead of
// serializing it as a wire reference (spec §6).
func NewError(kind ErrorType, level ErrorLevel, description string, refs ...ErrorReference) Error {
	out := Error{
		ErrorType:  kind,
		ErrorLevel: level,
	}
	kept := make([]ErrorReference, 0, len(refs))
	for _, r := range refs {
		if r.ReferenceKey == errDescriptionDetailKey {
			if description == "" {
				description = r.ReferenceValue
			} else {
				description = description + ": " + r.ReferenceValue
			}
			continue
		}
		kept = append(kept, r)
	}
	out.ErrorReferences = kept
	out.ErrorDescription = description
	return out
}

// Reference looks up the value of the first reference with the given key,
// returning ("", false) if absent. Used by the master dispatcher to
// correlate errors by orderId/orderUpdateId/actionId (spec §4.4).
func (e Error) Reference(key string) (string, bool) {
	for _, r := range e.ErrorReferences {
		if r.ReferenceKey == key {
			return r.ReferenceValue, true
		}
	}
	return "", false
}
