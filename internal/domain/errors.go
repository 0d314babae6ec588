package domain

import "errors"

var (
	// ErrSagaNotFound.  Terminal events addressed to an unknown correlation
	// ID are never fabricated into new saga instances; the consumer surfaces
	// this and leaves the message to the bus's dead-letter handling.
	ErrSagaNotFound = errors.New("saga instance not found")

	// ErrVersionConflict signals a lost optimistic-concurrency race. The
	// losing writer retries or relies on transport redelivery.
	ErrVersionConflict = errors.New("saga version conflict")

	// ErrDedupWithoutRequest is the fatal consistency violation of a dedup
	// mapping whose Request row is missing. Never auto-healed.
	ErrDedupWithoutRequest = errors.New("dedup key exists but request row is missing")

	// ErrRequestNotFound is returned by the request store on a miss.
	ErrRequestNotFound = errors.New("request not found")

	// ErrUnknownPartner and ErrDisallowedType are business-rule rejections
	// raised during saga validation.
	ErrUnknownPartner = errors.New("unknown partner code")
	ErrDisallowedType = errors.New("request type not allowed")
)
