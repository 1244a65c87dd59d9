package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// idRecord is a bun model keyed by a string uuid column named id.
type idRecord[T any] interface {
	*T
	recordID() string
	setRecordID(id string)
}

func modelHandlers[T any, P idRecord[T]]() repository.ModelHandlers[P] {
	return repository.ModelHandlers[P]{
		NewRecord: func() P {
			return P(new(T))
		},
		GetID: func(record P) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record P, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record P) string {
			return strings.TrimSpace(record.recordID())
		},
	}
}

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return modelHandlers[credentialRecord]()
}

func deliveryHandlers() repository.ModelHandlers[*deliveryRecord] {
	return modelHandlers[deliveryRecord]()
}

func rateLimitStateHandlers() repository.ModelHandlers[*rateLimitStateRecord] {
	return modelHandlers[rateLimitStateRecord]()
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
