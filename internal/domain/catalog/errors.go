package catalog

import (
	"errors"
	"fmt"
)

// Error kinds. A *LoadError wraps exactly one of the load kinds; sync failures
// wrap ErrFetchFailure or ErrPersistFailure around their cause.
var (
	// ErrIncompatibleVersion indicates the major lib version is outside the supported range.
	ErrIncompatibleVersion = errors.New("incompatible lib version")
	// ErrMissingEntryPoint indicates the package declares no entry type.
	ErrMissingEntryPoint = errors.New("entry type not declared")
	// ErrInvalidPluginType indicates the entry type does not implement Source.
	ErrInvalidPluginType = errors.New("entry type is not a catalog source")
	// ErrInstantiationFailure indicates the entry type could not be located or constructed.
	ErrInstantiationFailure = errors.New("plugin instantiation failed")
	// ErrPackageVanished indicates the host no longer knows the package.
	ErrPackageVanished = errors.New("package not installed")
	// ErrNotAPlugin indicates the package does not declare the plugin feature.
	ErrNotAPlugin = errors.New("package is not a catalog plugin")
	// ErrFetchFailure indicates the remote manifest could not be fetched.
	ErrFetchFailure = errors.New("remote manifest fetch failed")
	// ErrPersistFailure indicates the remote snapshot could not be persisted.
	ErrPersistFailure = errors.New("remote catalog persist failed")
)

// LoadError reports why one package could not be turned into an Installed catalog.
type LoadError struct {
	PkgName string
	Kind    error
	Cause   error
}

// NewLoadError builds a LoadError of the given kind.
func NewLoadError(pkgName string, kind, cause error) *LoadError {
	return &LoadError{PkgName: pkgName, Kind: kind, Cause: cause}
}

func (e *LoadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("loading %s: %v", e.PkgName, e.Kind)
	}
	return fmt.Sprintf("loading %s: %v: %v", e.PkgName, e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *LoadError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsLoadError returns true if err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr)
}
