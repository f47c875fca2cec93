package azbus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
)

func TestNewAzbusError(t *testing.T) {
	tests := []struct {
		name     string
		code     azservicebus.Code
		sentinel error
	}{
		{"lock lost", azservicebus.CodeLockLost, ErrLockLost},
		{"connection lost", azservicebus.CodeConnectionLost, ErrConnectionLost},
		{"unauthorized", azservicebus.CodeUnauthorizedAccess, ErrUnauthorizedAccess},
		{"timeout", azservicebus.CodeTimeout, ErrTimeout},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := NewAzbusError(&azservicebus.Error{Code: test.code})
			assert.ErrorIs(t, err, test.sentinel)
		})
	}
}

// Errors that are not vendor errors pass through untouched.
func TestNewAzbusErrorPassthrough(t *testing.T) {
	err := errors.New("something else")
	assert.Same(t, err, NewAzbusError(err))

	wrapped := fmt.Errorf("outer: %w", &azservicebus.Error{Code: azservicebus.CodeLockLost})
	assert.ErrorIs(t, NewAzbusError(wrapped), ErrLockLost)
}
