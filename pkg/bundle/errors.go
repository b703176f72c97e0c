package bundle

import (
	"errors"
	"fmt"

	"github.com/dukex/agentbundle/pkg/models"
)

var (
	// ErrEmptySelection indicates a bundle was requested for no nodes.
	ErrEmptySelection = errors.New("bundle selection is empty")

	// ErrInvalidComposition indicates the selection lacks an agent node or an output node.
	ErrInvalidComposition = errors.New("bundle needs at least one agent node and one output node")

	// ErrBundleNotFound indicates no bundle has the given id.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrInvalidColor indicates a color that is not a hex color.
	ErrInvalidColor = errors.New("invalid bundle color")
)

// BundleError wraps bundle operation failures with the bundle involved.
type BundleError struct {
	Op       string
	BundleID models.BundleID
	Err      error
}

func (e *BundleError) Error() string {
	if e.BundleID == 0 {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for bundle %d: %v", e.Op, e.BundleID, e.Err)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

func (e *BundleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether err rejects the caller's input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrInvalidComposition) ||
		errors.Is(err, ErrInvalidColor)
}

// IsNotFound reports whether err means the bundle does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBundleNotFound)
}
