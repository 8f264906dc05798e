package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a configuration error for programmatic handling.
type ErrorKind string

const (
	// ErrKindUnknownIdentifier indicates a target, platform, profile, or scope
	// token that is not in the supported set.
	ErrKindUnknownIdentifier ErrorKind = "unknown_identifier"

	// ErrKindDuplicateLayer indicates more than one layer defined for the
	// same scope.
	ErrKindDuplicateLayer ErrorKind = "duplicate_layer"

	// ErrKindDuplicateProperty indicates a property name defined more than
	// once within a single layer.
	ErrKindDuplicateProperty ErrorKind = "duplicate_property"

	// ErrKindNestedValue indicates a table or array where a flat scalar value
	// was required.
	ErrKindNestedValue ErrorKind = "unsupported_nested_value"

	// ErrKindMissingPath indicates that neither the selected layers nor the
	// global layer defined a required path.
	ErrKindMissingPath ErrorKind = "missing_required_path"

	// ErrKindManifestSyntax indicates the manifest text could not be parsed
	// as TOML at all.
	ErrKindManifestSyntax ErrorKind = "manifest_syntax"

	// ErrKindManifestShape indicates the manifest parsed but its structure is
	// not a valid layered configuration (non-table top-level entry, invalid
	// header, non-string path value).
	ErrKindManifestShape ErrorKind = "manifest_shape"
)

// IdentifierKind names which closed identifier set a token was checked against.
type IdentifierKind string

const (
	IdentifierTarget   IdentifierKind = "target"
	IdentifierPlatform IdentifierKind = "platform"
	IdentifierProfile  IdentifierKind = "build profile"
	IdentifierScope    IdentifierKind = "scope"
)

// PathKind names one of the two required configuration paths. The values
// double as the reserved manifest keys the paths are written under.
type PathKind string

const (
	PathArtifact    PathKind = "artifact-path"
	PathTargetSpecs PathKind = "target-specs-path"
)

// ConfigError is a classified configuration error with enough context for the
// author of the manifest to correct it. All resolution and ingestion failures
// in this package are reported as *ConfigError.
type ConfigError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// IdentifierKind and Identifier carry the offending token for
	// unknown-identifier errors; Identifier is reported verbatim.
	IdentifierKind IdentifierKind `json:"identifier_kind,omitempty"`
	Identifier     string         `json:"identifier,omitempty"`

	// ValidNames lists the accepted canonical names for the identifier set
	// the token was checked against.
	ValidNames []string `json:"valid_names,omitempty"`

	// Scope describes the layer the error occurred in, if applicable.
	Scope string `json:"scope,omitempty"`

	// Property is the offending property name, if applicable.
	Property string `json:"property,omitempty"`

	// Path names which required path is missing, if applicable.
	Path PathKind `json:"path,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Scope != "" && e.Property != "" {
		fmt.Fprintf(&b, " (layer=%s, property=%s)", e.Scope, e.Property)
	} else if e.Scope != "" {
		fmt.Fprintf(&b, " (layer=%s)", e.Scope)
	} else if e.Property != "" {
		fmt.Fprintf(&b, " (property=%s)", e.Property)
	}
	if len(e.ValidNames) > 0 {
		fmt.Fprintf(&b, "; valid names: %s", strings.Join(e.ValidNames, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is by comparing kinds.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithScope adds layer context to an error.
func (e *ConfigError) WithScope(scope string) *ConfigError {
	e.Scope = scope
	return e
}

// WithProperty adds property context to an error.
func (e *ConfigError) WithProperty(name string) *ConfigError {
	e.Property = name
	return e
}

// NewUnknownIdentifierError reports a token that matched no canonical name of
// the given identifier set. The token is preserved verbatim.
func NewUnknownIdentifierError(kind IdentifierKind, input string, valid []string) *ConfigError {
	return &ConfigError{
		Kind:           ErrKindUnknownIdentifier,
		Message:        fmt.Sprintf("unknown %s %q", kind, input),
		IdentifierKind: kind,
		Identifier:     input,
		ValidNames:     valid,
	}
}

// NewDuplicateLayerError reports more than one layer for the same scope.
func NewDuplicateLayerError(scope string) *ConfigError {
	return &ConfigError{
		Kind:    ErrKindDuplicateLayer,
		Message: fmt.Sprintf("duplicate configuration layer for %s", scope),
		Scope:   scope,
	}
}

// NewDuplicatePropertyError reports a property name defined twice in one layer.
func NewDuplicatePropertyError(scope, property string) *ConfigError {
	return &ConfigError{
		Kind:     ErrKindDuplicateProperty,
		Message:  fmt.Sprintf("property %q defined more than once", property),
		Scope:    scope,
		Property: property,
	}
}

// NewNestedValueError reports a table or array where a scalar was required.
func NewNestedValueError(detail string) *ConfigError {
	return &ConfigError{
		Kind:    ErrKindNestedValue,
		Message: fmt.Sprintf("nested values are not allowed in a resolved configuration: %s", detail),
	}
}

// NewMissingPathError reports that no selected layer defined a required path.
func NewMissingPathError(path PathKind) *ConfigError {
	return &ConfigError{
		Kind:    ErrKindMissingPath,
		Message: fmt.Sprintf("no layer defines required path %q", path),
		Path:    path,
	}
}

// NewManifestSyntaxError wraps a TOML parse failure.
func NewManifestSyntaxError(err error) *ConfigError {
	return &ConfigError{
		Kind:    ErrKindManifestSyntax,
		Message: "failed to parse manifest TOML",
		Err:     err,
	}
}

// NewManifestShapeError reports structurally invalid manifest content.
func NewManifestShapeError(message string, err error) *ConfigError {
	return &ConfigError{
		Kind:    ErrKindManifestShape,
		Message: message,
		Err:     err,
	}
}

// AsConfigError extracts a *ConfigError from an error chain.
func AsConfigError(err error) (*ConfigError, bool) {
	var e *ConfigError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsUnknownIdentifier returns true if the error is an unknown-identifier error.
func IsUnknownIdentifier(err error) bool {
	return hasKind(err, ErrKindUnknownIdentifier)
}

// IsDuplicateLayer returns true if the error is a duplicate-layer error.
func IsDuplicateLayer(err error) bool {
	return hasKind(err, ErrKindDuplicateLayer)
}

// IsDuplicateProperty returns true if the error is a duplicate-property error.
func IsDuplicateProperty(err error) bool {
	return hasKind(err, ErrKindDuplicateProperty)
}

// IsNestedValue returns true if the error is an unsupported-nested-value error.
func IsNestedValue(err error) bool {
	return hasKind(err, ErrKindNestedValue)
}

// IsMissingPath returns true if the error is a missing-required-path error.
func IsMissingPath(err error) bool {
	return hasKind(err, ErrKindMissingPath)
}

func hasKind(err error, kind ErrorKind) bool {
	var e *ConfigError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
