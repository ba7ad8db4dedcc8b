package ferry

import "errors"

var (
	// Envelope errors. Both are permanent: the message is rejected and
	// never retried.
	ErrMalformedEnvelope   = errors.New("ferry: malformed envelope")
	ErrUnresolvableHandler = errors.New("ferry: unresolvable handler")

	// Processing errors.
	ErrHandlerFault       = errors.New("ferry: handler fault")
	ErrAttemptsExhausted  = errors.New("ferry: attempts exhausted")
	ErrArchivePersistence = errors.New("ferry: archive persistence failed")

	// Configuration errors.
	ErrConfigExists       = errors.New("ferry: config already exists")
	ErrConfigNotFound     = errors.New("ferry: config not found")
	ErrMissingURL         = errors.New("ferry: config must specify url")
	ErrMissingName        = errors.New("ferry: config must specify name")
	ErrUniqueCacheMissing = errors.New("ferry: unique handler requires uniqueCache configuration")
	ErrUnknownScheme      = errors.New("ferry: unknown broker scheme")
	ErrUnknownCache       = errors.New("ferry: unknown cache engine")

	// Broker errors.
	ErrBrokerClosed = errors.New("ferry: broker closed")

	// Archive errors.
	ErrNoArchive         = errors.New("ferry: no archive store configured")
	ErrFailedJobNotFound = errors.New("ferry: failed job not found")
	ErrInvalidFilter     = errors.New("ferry: invalid filter expression")
)
