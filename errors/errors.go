package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the binding the error occurred
type Phase string

const (
	PhaseConvert   Phase = "convert"   // public type <-> tagged value
	PhaseEncode    Phase = "encode"    // tagged value -> native buffer
	PhaseDecode    Phase = "decode"    // native buffer -> tagged value
	PhaseHandle    Phase = "handle"    // native handle lifetime
	PhaseImport    Phase = "import"    // unmanaged object graph import
	PhaseQuery     Phase = "query"     // query argument encoding
	PhaseChangeset Phase = "changeset" // change-set decoding
	PhaseCallback  Phase = "callback"  // native callback bridging
	PhaseNative    Phase = "native"    // errors reported by the engine
	PhaseOpen      Phase = "open"      // opening or deleting storage
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedType Kind = "unsupported_type"
	KindStaleObject     Kind = "stale_object"
	KindInvalidHandle   Kind = "invalid_handle"
	KindDoubleRelease   Kind = "double_release"
	KindConsistency     Kind = "consistency_violation"
	KindResourceInUse   Kind = "resource_in_use"
	KindNative          Kind = "native"
	KindTypeMismatch    Kind = "type_mismatch"
	KindOverflow        Kind = "overflow"
	KindInvalidData     Kind = "invalid_data"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindAlreadyExists   Kind = "already_exists"
	KindFieldUnknown    Kind = "field_unknown"
	KindAllocation      Kind = "allocation"
	KindCancelled       Kind = "cancelled"
	KindClosed          Kind = "closed"
)

// Sentinel targets for errors.Is. They carry no Phase, so they match any
// error of the same Kind.
var (
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrStaleObject     = &Error{Kind: KindStaleObject}
	ErrInvalidHandle   = &Error{Kind: KindInvalidHandle}
	ErrDoubleRelease   = &Error{Kind: KindDoubleRelease}
	ErrConsistency     = &Error{Kind: KindConsistency}
	ErrResourceInUse   = &Error{Kind: KindResourceInUse}
	ErrNative          = &Error{Kind: KindNative}
	ErrOverflow        = &Error{Kind: KindOverflow}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrCancelled       = &Error{Kind: KindCancelled}
	ErrClosed          = &Error{Kind: KindClosed}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrTypeMismatch    = &Error{Kind: KindTypeMismatch}
)

// Error is the structured error type used throughout the binding
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Category   string
	Path       []string
	Code       int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Kind == KindNative && (e.Category != "" || e.Code != 0) {
		fmt.Fprintf(&b, " (%s/%d)", e.Category, e.Code)
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native value type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnsupportedType reports a converter registry miss.
func UnsupportedType(phase Phase, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupportedType,
		GoType: goType,
		Detail: "no converter registered",
	}
}

// UnsupportedNativeType reports a tagged value discriminant this layer
// cannot represent.
func UnsupportedNativeType(phase Phase, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindUnsupportedType,
		NativeType: nativeType,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// StaleObject reports an object reference attached to another storage
// generation than the one the operation targets.
func StaleObject(class string, have, want uint64) *Error {
	return &Error{
		Phase:  PhaseConvert,
		Kind:   KindStaleObject,
		Path:   []string{class},
		Detail: fmt.Sprintf("object belongs to generation %d, target is %d; re-fetch it", have, want),
	}
}

// InvalidHandle reports an operation on a released or null native handle.
func InvalidHandle(what string) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindInvalidHandle,
		Detail: what,
	}
}

// DoubleRelease reports a second release of a managed handle.
func DoubleRelease(kind string) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindDoubleRelease,
		Detail: fmt.Sprintf("%s handle already released", kind),
	}
}

// Consistency reports native/binding protocol drift.
func Consistency(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseChangeset,
		Kind:   KindConsistency,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// ResourceInUse reports an operation refused because handles remain open.
func ResourceInUse(path string, open int) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindResourceInUse,
		Path:   []string{path},
		Detail: fmt.Sprintf("%d native handle(s) still open", open),
		Value:  open,
	}
}

// Native wraps an engine-reported error without interpreting it.
func Native(category string, code int, message string) *Error {
	return &Error{
		Phase:    PhaseNative,
		Kind:     KindNative,
		Category: category,
		Code:     code,
		Detail:   message,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// AlreadyExists reports an import conflict under the error update policy.
func AlreadyExists(class string, pk any) *Error {
	return &Error{
		Phase:  PhaseImport,
		Kind:   KindAlreadyExists,
		Path:   []string{class},
		Detail: fmt.Sprintf("object with primary key %v already exists", pk),
		Value:  pk,
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldUnknown,
		Path:   path,
		Detail: fmt.Sprintf("unknown field %q", fieldName),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Cancelled reports a caller-side cancellation.
func Cancelled(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCancelled,
		Detail: what,
	}
}

// Closed reports use of a closed resource.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
