package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/crossbus-io/crossbus/pkg/crossbus/definition"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handshake"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// wildcardOrigin is the sentinel that strict mode refuses to carry.
const wildcardOrigin = "*"

// Options configures a Bus at construction time.
type Options struct {
	PeerID string
	IsHub  bool

	// AllowedOrigins is the explicit allow-list strict mode requires. An
	// empty list with StrictMode false means "accept any origin".
	AllowedOrigins []string
	StrictMode     bool

	MaxPeers           int
	MaxPendingRequests int
	RequestTimeout     time.Duration
	AckTimeout         time.Duration

	// HandshakeValidator, if set, overrides the allow-list validator built
	// from AllowedOrigins/StrictMode.
	HandshakeValidator handshake.Validator

	PresenceInterval  time.Duration
	PresenceTimeout   time.Duration
	OrdererBufferSize int

	Logger definition.Logger
}

const (
	defaultRequestTimeout    = 5 * time.Second
	defaultAckTimeout        = 3 * time.Second
	defaultPresenceInterval  = 10 * time.Second
	defaultPresenceTimeout   = 30 * time.Second
	defaultOrdererBufferSize = 256
)

func (o Options) withDefaults() Options {
	if o.PeerID == "" {
		o.PeerID = uuid.NewString()
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = defaultAckTimeout
	}
	if o.PresenceInterval <= 0 {
		o.PresenceInterval = defaultPresenceInterval
	}
	if o.PresenceTimeout <= 0 {
		o.PresenceTimeout = defaultPresenceTimeout
	}
	if o.OrdererBufferSize <= 0 {
		o.OrdererBufferSize = defaultOrdererBufferSize
	}
	if o.Logger == nil {
		o.Logger = definition.NewLogrusLogger()
	}
	return o
}

func (o Options) validate() error {
	if o.StrictMode {
		if len(o.AllowedOrigins) == 0 {
			return xerrors.From(xerrors.CodeOriginForbidden, map[string]interface{}{
				"reason": "strictMode requires a non-empty allowedOrigins list",
			})
		}
		for _, origin := range o.AllowedOrigins {
			if origin == wildcardOrigin {
				return xerrors.From(xerrors.CodeOriginForbidden, map[string]interface{}{
					"reason": "strictMode rejects a wildcard origin entry",
				})
			}
		}
	}
	return nil
}

func (o Options) originAllowed(origin string) bool {
	if len(o.AllowedOrigins) == 0 {
		return !o.StrictMode
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == wildcardOrigin || allowed == origin {
			return true
		}
	}
	return false
}

func (o Options) defaultValidator() handshake.Validator {
	return func(origin string, _ handshake.Init) (bool, string) {
		if o.originAllowed(origin) {
			return true, ""
		}
		return false, "origin not in allowedOrigins"
	}
}
