package delayed

import "github.com/xraph/delayed/id"

// ID is the identifier type of persisted jobs.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
