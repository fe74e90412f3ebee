package domain

import (
	"errors"

	"github.com/pendergraft/contraship/internal/networks"
)

// Errors returned by the deployment engine.
var (
	ErrUnknownNetwork           = networks.ErrUnknownNetwork
	ErrMissingDependencyAddress = errors.New("missing dependency address")
	ErrDeploymentRejected       = errors.New("deployment rejected")
	ErrConfirmationTimeout      = errors.New("confirmation timeout")
	ErrVerificationFailed       = errors.New("verification failed")
	ErrInvalidTemplate          = errors.New("invalid constructor argument template")
	ErrNotFound                 = errors.New("deployment not found")
)
