package spec

import (
	"errors"
	"fmt"
)

var (
	ErrNotSFD                = errors.New("libsfd: not an sfd file")
	ErrUnsupportedVersion    = errors.New("libsfd: unsupported version")
	ErrUnsupportedEncryption = errors.New("libsfd: unsupported encryption")
	ErrFileSize              = errors.New("libsfd: file size mismatch")
	ErrShortRead             = errors.New("libsfd: short read")

	// ErrContractViolation matches every *ContractError.
	ErrContractViolation = errors.New("libsfd: contract violation")
)

// ContractError reports a broken internal invariant: malformed writer input,
// an index used outside its own bounds, corrupt debug strings and similar.
// Callers should abort the operation that returned it.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string {
	return "libsfd: contract violation: " + e.Msg
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// Violationf formats a *ContractError.
func Violationf(format string, args ...any) error {
	return &ContractError{Msg: fmt.Sprintf(format, args...)}
}
