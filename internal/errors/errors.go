// Package errors defines Pantry's error taxonomy. Every failure mode that
// can surface from the resolver, downloader, cache, or installer is one of
// the Kinds below so that callers (the CLI, tests, the activation hook) can
// branch on classification rather than string-matching error text.
package errors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pantryhq/pantry/internal/util"
)

// Kind classifies a Pantry error for exit-code mapping and user-facing
// suggestions. It intentionally mirrors a closed enum rather than a tree of
// error types: the resolver, downloader and installer all want to ask "is
// this retryable / fatal / a warning" without type-asserting.
type Kind int

const (
	// KindUnknown is never constructed directly; its presence means a bug.
	KindUnknown Kind = iota
	KindManifestParse
	KindUnknownDependencyFormat
	KindVersionConflict
	KindUnresolvableConstraint
	KindRegistryFetchFailed
	KindIntegrityMismatch
	KindCacheCorrupt
	KindDiskFull
	KindPermission
	KindNetworkTransient
	KindNetworkFatal
	KindOfflineCacheMiss
	KindLockfileVersionMismatch
	KindLockfileOutOfDate
	KindLifecycleScriptFailed
	KindTimeout
	KindCancelled
	KindConcurrencyLimitInvalid
	KindCycleAmongNonPeerEdges
)

func (k Kind) String() string {
	switch k {
	case KindManifestParse:
		return "ManifestParse"
	case KindUnknownDependencyFormat:
		return "UnknownDependencyFormat"
	case KindVersionConflict:
		return "VersionConflict"
	case KindUnresolvableConstraint:
		return "UnresolvableConstraint"
	case KindRegistryFetchFailed:
		return "RegistryFetchFailed"
	case KindIntegrityMismatch:
		return "IntegrityMismatch"
	case KindCacheCorrupt:
		return "CacheCorrupt"
	case KindDiskFull:
		return "DiskFull"
	case KindPermission:
		return "Permission"
	case KindNetworkTransient:
		return "NetworkTransient"
	case KindNetworkFatal:
		return "NetworkFatal"
	case KindOfflineCacheMiss:
		return "OfflineCacheMiss"
	case KindLockfileVersionMismatch:
		return "LockfileVersionMismatch"
	case KindLockfileOutOfDate:
		return "LockfileOutOfDate"
	case KindLifecycleScriptFailed:
		return "LifecycleScriptFailed"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindConcurrencyLimitInvalid:
		return "ConcurrencyLimitInvalid"
	case KindCycleAmongNonPeerEdges:
		return "CycleAmongNonPeerEdges"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind to the CLI exit code contract in spec §6.
func (k Kind) ExitCode() int {
	switch k {
	case KindVersionConflict, KindUnresolvableConstraint, KindCycleAmongNonPeerEdges:
		return 2
	case KindIntegrityMismatch:
		return 3
	case KindLockfileOutOfDate:
		return 4
	case KindOfflineCacheMiss:
		return 5
	case KindLifecycleScriptFailed:
		return 6
	case KindUnknown:
		return 0
	default:
		return 1
	}
}

// Suggestion returns the short contextual hint spec §7 asks for.
func (k Kind) Suggestion() string {
	switch k {
	case KindNetworkTransient, KindNetworkFatal, KindRegistryFetchFailed:
		return "try again with --offline if you have a warm cache"
	case KindPermission:
		return "check ownership of the cache and environment directories"
	case KindDiskFull:
		return "run `pantry cache prune` to free space"
	case KindVersionConflict, KindUnresolvableConstraint:
		return "run the dependency-tree visualizer to see conflicting requesters"
	case KindIntegrityMismatch:
		return "clear the affected artifact cache entry and retry"
	case KindOfflineCacheMiss:
		return "disable --offline or warm the cache first"
	case KindLockfileOutOfDate:
		return "run without --frozen-lockfile to update the lockfile"
	case KindUnknown:
		return "this shouldn't happen, please file an issue at " + util.SourceCodeIssues
	default:
		return ""
	}
}

// Error is a classified, wrapped error. Fields beyond Kind are filled in as
// available; zero values are fine (e.g. Name == "" for a CacheCorrupt error
// that isn't about one specific package).
type Error struct {
	Kind     Kind
	Name     string
	A, B     string // VersionConflict: competing constraints
	Expected string // IntegrityMismatch: expected hash (hex)
	Got      string // IntegrityMismatch: actual hash (hex)
	Code     int    // LifecycleScriptFailed: child exit code
	Reason   string // ManifestParse: which invariant was violated
	cause    error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *Error) message() string {
	switch e.Kind {
	case KindVersionConflict:
		return fmt.Sprintf("version conflict for %q: %s vs %s", e.Name, e.A, e.B)
	case KindUnresolvableConstraint:
		return fmt.Sprintf("unresolvable constraint for %q: %s", e.Name, e.A)
	case KindRegistryFetchFailed:
		return fmt.Sprintf("registry fetch failed for %q", e.Name)
	case KindIntegrityMismatch:
		return fmt.Sprintf("integrity mismatch for %s: expected %s got %s", e.Name, e.Expected, e.Got)
	case KindLifecycleScriptFailed:
		return fmt.Sprintf("lifecycle script for %q failed with exit code %d", e.Name, e.Code)
	case KindLockfileVersionMismatch:
		return "lockfile version is newer than this implementation supports"
	case KindManifestParse:
		if e.Reason != "" {
			return fmt.Sprintf("invalid manifest: %s", e.Reason)
		}
		return "invalid manifest"
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// New builds a bare classified error.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap classifies an existing error under kind, preserving it as the cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: errors.WithStack(cause)}
}

// VersionConflict builds a KindVersionConflict error with both requesters.
func VersionConflict(name, a, b string) *Error {
	return &Error{Kind: KindVersionConflict, Name: name, A: a, B: b}
}

// UnresolvableConstraint builds a KindUnresolvableConstraint error.
func UnresolvableConstraint(name, constraint string) *Error {
	return &Error{Kind: KindUnresolvableConstraint, Name: name, A: constraint}
}

// IntegrityMismatch builds a KindIntegrityMismatch error.
func IntegrityMismatch(name, expectedHex, gotHex string) *Error {
	return &Error{Kind: KindIntegrityMismatch, Name: name, Expected: expectedHex, Got: gotHex}
}

// LifecycleScriptFailed builds a KindLifecycleScriptFailed error.
func LifecycleScriptFailed(name string, code int) *Error {
	return &Error{Kind: KindLifecycleScriptFailed, Name: name, Code: code}
}

// RegistryFetchFailed builds a KindRegistryFetchFailed error wrapping cause.
func RegistryFetchFailed(name string, cause error) *Error {
	return &Error{Kind: KindRegistryFetchFailed, Name: name, cause: errors.WithStack(cause)}
}

// InvalidManifest builds a KindManifestParse error for a manifest that
// parsed fine as JSON but violates one of §3's normalized-manifest
// invariants (workspace pattern traversal, duplicate dependency names, a
// negative minimumReleaseAge).
func InvalidManifest(reason string) *Error {
	return &Error{Kind: KindManifestParse, Reason: reason}
}

// CycleAmongNonPeerEdges builds a KindCycleAmongNonPeerEdges error.
func CycleAmongNonPeerEdges() *Error {
	return &Error{Kind: KindCycleAmongNonPeerEdges}
}

// As is a small helper around the standard library's errors.As for the
// common case of testing a Kind without pulling in a local var at call sites.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is (or wraps) a Pantry error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
