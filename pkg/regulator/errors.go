package regulator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedDataType     = errors.New("unsupported property data type")
	ErrInvalidPropertyValue    = errors.New("invalid property value")
	ErrUnresolvedIdentity      = errors.New("sensitive property on an object without identity")
	ErrUnregisteredSpecifier   = errors.New("specifier function not registered")
	ErrAmbiguousExtraction     = errors.New("extraction yielded more than one value")
	ErrEdgeConstraintViolation = errors.New("edge constraint violation")
	ErrUnresolvedProperty      = errors.New("edge property could not be resolved")
	ErrNoVault                 = errors.New("no sensitive data vault configured")
)

// EdgeConstraintError is returned when an edge's endpoint types are not in
// the schema's accepted from and to sets.
type EdgeConstraintError struct {
	EdgeLabel    string
	FromType     string
	ToType       string
	AcceptedFrom []string
	AcceptedTo   []string
}

func (e *EdgeConstraintError) Error() string {
	return fmt.Sprintf("cannot build %s edge from %s to %s, accepted: [%s] -> [%s]",
		e.EdgeLabel, e.FromType, e.ToType,
		strings.Join(e.AcceptedFrom, ","), strings.Join(e.AcceptedTo, ","))
}

func (e *EdgeConstraintError) Unwrap() error {
	return ErrEdgeConstraintViolation
}
