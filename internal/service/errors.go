package service

import (
	"errors"
	"fmt"
)

// ErrTransient marks consumer-side failures that redelivery can fix:
// collaborator lookups that failed, missing correctness data, bus hiccups.
// Workers requeue on ErrTransient and acknowledge everything else.
var ErrTransient = errors.New("transient dependency failure")

// ErrPoisonMessage marks structurally invalid events. Retrying cannot make
// a malformed message valid, so these are logged and acknowledged.
var ErrPoisonMessage = errors.New("poison message")

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func poison(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPoisonMessage, fmt.Sprintf(format, args...))
}
