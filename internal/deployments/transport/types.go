// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"time"

	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data  []DeploymentResponse `json:"data"`
	Count int                  `json:"count"`
}

// DeploymentResponse is one deployment record.
type DeploymentResponse struct {
	ContractName         string    `json:"contractName"`
	ChainID              int64     `json:"chainId"`
	Network              string    `json:"network,omitempty"`
	Address              string    `json:"address"`
	ConstructorArgs      []any     `json:"constructorArgs"`
	TxHash               string    `json:"txHash,omitempty"`
	Status               string    `json:"status"`
	BlockNumber          int64     `json:"blockNumber,omitempty"`
	Verified             bool      `json:"verified"`
	VerificationAttempts int       `json:"verificationAttempts"`
	Mock                 bool      `json:"mock,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// NetworkResponse is one registered network.
type NetworkResponse struct {
	ChainID               int64             `json:"chainId"`
	Name                  string            `json:"name"`
	Development           bool              `json:"development"`
	ConfirmationsRequired uint64            `json:"confirmations"`
	KnownAddresses        map[string]string `json:"knownAddresses,omitempty"`
	ExplorerAPIURL        string            `json:"explorerApiUrl,omitempty"`
}

// NetworkListResponse is the response for listing networks.
type NetworkListResponse struct {
	Data []NetworkResponse `json:"data"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toDeploymentResponse(d domain.Deployment) DeploymentResponse {
	args := d.ConstructorArgs
	if args == nil {
		args = []any{}
	}
	return DeploymentResponse{
		ContractName:         d.ContractName,
		ChainID:              d.ChainID,
		Network:              d.Network,
		Address:              d.Address,
		ConstructorArgs:      args,
		TxHash:               d.TxHash,
		Status:               string(d.Status),
		BlockNumber:          d.BlockNumber,
		Verified:             d.Verified,
		VerificationAttempts: d.VerificationAttempts,
		Mock:                 d.Mock,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func toNetworkResponse(d networks.NetworkDescriptor) NetworkResponse {
	return NetworkResponse{
		ChainID:               d.ChainID,
		Name:                  d.Name,
		Development:           d.IsDevelopment,
		ConfirmationsRequired: d.ConfirmationsRequired,
		KnownAddresses:        d.KnownAddresses,
		ExplorerAPIURL:        d.ExplorerAPIURL,
	}
}
