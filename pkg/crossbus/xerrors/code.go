package xerrors

// Code is a member of the closed error-code enumeration every CrossBus
// error carries.
type Code string

const (
	// connection
	CodeHandshakeTimeout  Code = "HANDSHAKE_TIMEOUT"
	CodeHandshakeRejected Code = "HANDSHAKE_REJECTED"
	CodeOriginForbidden   Code = "ORIGIN_FORBIDDEN"
	CodePeerExists        Code = "PEER_EXISTS"
	CodePeerNotFound      Code = "PEER_NOT_FOUND"
	CodePeerDisconnected  Code = "PEER_DISCONNECTED"

	// messaging
	CodeResponseTimeout Code = "RESPONSE_TIMEOUT"
	CodeQueueFull       Code = "QUEUE_FULL"
	CodeInvalidMessage  Code = "INVALID_MESSAGE"
	CodeVersionMismatch Code = "VERSION_MISMATCH"
	CodeTransferFailure Code = "TRANSFER_FAILURE"
	CodeMessageTooLarge Code = "MESSAGE_TOO_LARGE"
	CodeSendFailed      Code = "SEND_FAILED"

	// routing
	CodeUnreachable Code = "UNREACHABLE"
	CodeTTLExceeded Code = "TTL_EXCEEDED"
	CodeNoRoute     Code = "NO_ROUTE"

	// handler
	CodeNoHandler      Code = "NO_HANDLER"
	CodeHandlerError   Code = "HANDLER_ERROR"
	CodeHandlerTimeout Code = "HANDLER_TIMEOUT"
	CodeHandlerExists  Code = "HANDLER_EXISTS"

	// channel
	CodeChannelFailed Code = "CHANNEL_FAILED"
	CodeChannelClosed Code = "CHANNEL_CLOSED"

	// resources
	CodeMaxPeers   Code = "MAX_PEERS"
	CodeMaxPending Code = "MAX_PENDING"
	CodeDestroyed  Code = "DESTROYED"
	CodeCancelled  Code = "CANCELLED"

	// resilience
	CodeCircuitOpen Code = "CIRCUIT_OPEN"

	// security
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"

	// generic fallback for failures no other code describes; also the
	// defaults entry used for a code missing from the defaults table.
	CodeUnknown Code = "UNKNOWN"
)

type codeDefault struct {
	message     string
	retryable   bool
	remediation string
}

var defaults = map[Code]codeDefault{
	CodeHandshakeTimeout:  {"handshake did not complete before the deadline", true, "retry the handshake or raise ackTimeout"},
	CodeHandshakeRejected: {"handshake was rejected by the responder", false, "check allowedOrigins and the responder's validator"},
	CodeOriginForbidden:   {"origin is not in the allowed list", false, "add the origin to allowedOrigins or disable strictMode"},
	CodePeerExists:        {"a peer with this id is already registered", false, "remove the existing peer first or pick a new id"},
	CodePeerNotFound:      {"no peer with this id is registered", false, "call addPeer before routing to this id"},
	CodePeerDisconnected:  {"peer is known but not connected", true, "wait for reconnection or remove the peer"},

	CodeResponseTimeout: {"no response arrived before the deadline", true, "raise timeoutMs or investigate the remote handler"},
	CodeQueueFull:       {"backpressure queue is at capacity", true, "raise the queue cap or slow down the producer"},
	CodeInvalidMessage:  {"message failed envelope validation", false, "inspect the payload against the expected schema"},
	CodeVersionMismatch: {"protocol version is not compatible", false, "upgrade the older peer"},
	CodeTransferFailure: {"failed to detect or move transferable payload", false, "avoid passing non-transferable objects as transferables"},
	CodeMessageTooLarge: {"message exceeds the configured size limit", false, "split the payload or raise the limit"},
	CodeSendFailed:      {"transport send failed", true, "inspect the transport's own error"},

	CodeUnreachable: {"destination is not reachable from this bus", false, "check routing/hub topology"},
	CodeTTLExceeded: {"message exceeded its hop limit", false, "check for routing loops"},
	CodeNoRoute:     {"no route to the given peer id", false, "call addPeer before routing to this id"},

	CodeNoHandler:      {"no handler registered for this name", false, "register a handler with bus.Handle before requesting it"},
	CodeHandlerError:   {"handler returned an error", false, "inspect details.message for the handler's error"},
	CodeHandlerTimeout: {"handler did not complete before the receiver-side deadline", true, "optimize the handler or raise its timeout"},
	CodeHandlerExists:  {"a handler with this name is already registered", false, "remove the existing handler first or pick a new name"},

	CodeChannelFailed: {"underlying channel failed", true, "inspect the transport"},
	CodeChannelClosed: {"underlying channel is closed", false, "the peer or transport is gone"},

	CodeMaxPeers:   {"peer table is at its configured maximum", false, "raise maxPeers or remove an existing peer"},
	CodeMaxPending: {"pending request table is at its configured maximum", true, "raise maxPendingRequests or wait for in-flight requests to complete"},
	CodeDestroyed:  {"bus has been destroyed", false, "construct a new bus"},
	CodeCancelled:  {"request was cancelled", false, "retry with a new request if still needed"},

	CodeCircuitOpen: {"circuit breaker is open", true, "wait for the reset timeout to elapse"},

	CodePayloadTooLarge: {"payload exceeds the configured size limit", false, "split the payload or raise the limit"},
	CodeRateLimited:     {"rate limit exceeded", true, "retry after the reported retryAfter duration"},
	CodeUnauthorized:    {"caller is not authorized for this operation", false, "check allowedPeers/capabilities"},
	CodeInvalidPayload:  {"payload failed schema validation", false, "inspect details.path and details.message"},

	CodeUnknown: {"unknown error", false, ""},
}

func lookup(code Code) codeDefault {
	if d, ok := defaults[code]; ok {
		return d
	}
	return defaults[CodeUnknown]
}

// DefaultMessage returns the human message for the given code.
func DefaultMessage(code Code) string { return lookup(code).message }

// DefaultRetryable returns whether the given code is retryable by default.
func DefaultRetryable(code Code) bool { return lookup(code).retryable }

// RemediationHint returns the canned remediation hint for the given code.
func RemediationHint(code Code) string { return lookup(code).remediation }
