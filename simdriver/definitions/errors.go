package definitions

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFrameworkArtifact   = errors.New("missing framework artifact")
	ErrBundleIdentifierNotFound   = errors.New("bundle identifier not found")
	ErrInvalidDeviceConfiguration = errors.New("invalid device configuration")

	ErrEmptyBinaryPath = fmt.Errorf("%w: binaryPath is missing", ErrInvalidDeviceConfiguration)
	ErrEmptyName       = fmt.Errorf("%w: name is missing", ErrInvalidDeviceConfiguration)
)

// ErrorKind is the failure category of a driver operation.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMissingFrameworkArtifact
	KindBundleIdentifierNotFound
	KindInvalidDeviceConfiguration
	KindBackendOperationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMissingFrameworkArtifact:
		return "missing_framework_artifact"
	case KindBundleIdentifierNotFound:
		return "bundle_identifier_not_found"
	case KindInvalidDeviceConfiguration:
		return "invalid_device_configuration"
	case KindBackendOperationFailed:
		return "backend_operation_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// KindOf classifies err. Anything that is not one of the driver's own errors
// came from the backend or an external tool.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMissingFrameworkArtifact):
		return KindMissingFrameworkArtifact
	case errors.Is(err, ErrBundleIdentifierNotFound):
		return KindBundleIdentifierNotFound
	case errors.Is(err, ErrInvalidDeviceConfiguration):
		return KindInvalidDeviceConfiguration
	default:
		return KindBackendOperationFailed
	}
}

// MissingFrameworkError is returned by Prepare when the framework support
// files are not on disk.
type MissingFrameworkError struct {
	Path string
}

func (e *MissingFrameworkError) Error() string {
	return fmt.Sprintf("%s could not be found, this means either you changed a version of Xcode or the framework build was unsuccessful.\n"+
		"To attempt a fix try running 'simdriver --clean-framework-cache' and rebuild the framework cache", e.Path)
}

func (e *MissingFrameworkError) Unwrap() error {
	return ErrMissingFrameworkArtifact
}

// BundleIDNotFoundError covers both a failed Info.plist read and an empty
// CFBundleIdentifier value.
type BundleIDNotFoundError struct {
	AppPath string
	Cause   error
}

func (e *BundleIDNotFoundError) Error() string {
	return fmt.Sprintf("field CFBundleIdentifier not found inside Info.plist of app binary at %s", e.AppPath)
}

func (e *BundleIDNotFoundError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrBundleIdentifierNotFound}
	}
	return []error{ErrBundleIdentifierNotFound, e.Cause}
}
