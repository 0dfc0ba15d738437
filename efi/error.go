package efi

import (
	"fmt"

	"github.com/pkg/errors"
)

// IsSuccess reports whether s is EFI_SUCCESS.
func (s Status) IsSuccess() bool {
	return s == Success
}

// IsError reports whether s is in the error tier (high bit set).
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// IsWarning reports whether s is in the warning tier.
func (s Status) IsWarning() bool {
	return s != Success && !s.IsError()
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("EFI_STATUS(%#x)", uint64(s))
}

// StatusError is a non-success firmware status carried as a value. Nothing
// ever unwinds across the firmware call boundary; every failure travels back
// this way.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return e.Status.String()
}

// Err converts a status into an error value. Warnings are hard errors here;
// call sites that can act on a warning (buffer size probes) inspect the
// status before converting.
func (s Status) Err() error {
	if s.IsSuccess() {
		return nil
	}

	return &StatusError{Status: s}
}

// StatusOf unpacks the firmware status inside err, if there is one.
func StatusOf(err error) (Status, bool) {
	se, ok := errors.Cause(err).(*StatusError)
	if !ok {
		return Success, false
	}

	return se.Status, true
}
