package usecase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCatalogUnavailable aborts an aggregation run: without the item list
// there is nothing to fan out over.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Load stages reported by PersistenceError.
const (
	StageCatalog    = "catalog"
	StageStatistics = "statistics"
	StageDerive     = "derive"
)

// PersistenceError reports a rolled-back store transaction. Dates lists
// the artifact dates whose records were not committed.
type PersistenceError struct {
	Stage string
	Dates []string
	Err   error
}

func (e *PersistenceError) Error() string {
	if len(e.Dates) == 0 {
		return fmt.Sprintf("persist %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("persist %s [%s]: %v", e.Stage, strings.Join(e.Dates, ","), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
