package registry

import (
	"errors"
	"fmt"

	"github.com/roach88/nodesync/internal/ir"
)

// MissingMappingError is returned when an id has no live node.
// The diff engine always registers an id before using it, so this means the
// script and the registry disagree.
type MissingMappingError struct {
	ID   ir.ElementID
	Dead bool // mapped, but the node was freed outside the registry
}

func (e *MissingMappingError) Error() string {
	if e.Dead {
		return fmt.Sprintf("element %s maps to a removed node", e.ID)
	}
	return fmt.Sprintf("element %s is not registered", e.ID)
}

// IsMissingMapping returns true if err wraps a *MissingMappingError.
func IsMissingMapping(err error) bool {
	var me *MissingMappingError
	return errors.As(err, &me)
}
