package custodian

import "github.com/xraph/custodian/id"

// ID is the primary identifier type for all persisted Custodian entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// CheckLogID identifies a recorded gate decision.
type CheckLogID = id.CheckLogID
