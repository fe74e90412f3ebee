// Package validation provides input validation for contraship.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Solidity identifiers: letters, digits, underscore and dollar, not starting with a digit
var contractNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]{0,127}$`)

// Dependency names are config keys such as "ethUsdPriceFeed"
var dependencyNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidateContractName validates a contract name
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if !contractNameRegex.MatchString(name) {
		return errors.New("invalid contract name: must be a Solidity identifier")
	}
	return nil
}

// ValidateDependencyName validates a dependency name
func ValidateDependencyName(name string) error {
	if name == "" {
		return errors.New("dependency name cannot be empty")
	}
	if !dependencyNameRegex.MatchString(name) {
		return errors.New("invalid dependency name: must start with a letter and contain only letters, digits, '-' or '_'")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version such as "0.8.8" or "v0.8.8+commit.dddeac2f"
func ValidateCompilerVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid compiler version: must be in format X.Y.Z[+commit.hash]")
	}
	mainPart, _, _ := strings.Cut(normalized, "+")
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z")
	}
	return nil
}

// NormalizeCompilerVersion returns the version with a leading 'v', as block explorers expect
func NormalizeCompilerVersion(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}
