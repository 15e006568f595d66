package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// SendRequest is a parsed "send" command. Chains are left as typed; resolving them is
// up to the caller.
type SendRequest struct {
	Amount    string
	Token     string
	FromChain string
	ToChain   string
}

// <amount> <token> [FROM <chain>] TO <chain>
var sendPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+([A-Z0-9]+)(?:\s+FROM\s+([A-Z0-9-]+))?\s+TO\s+([A-Z0-9-]+)$`)

// ParseSendCommand parses a natural language send command
// Examples:
//   - "send 100 OFT to amoy"
//   - "2.5 OFT from bsc-testnet to sepolia"
//   - "100 OFT to 80002"
func ParseSendCommand(command string) (*SendRequest, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SEND ")
	command = strings.TrimPrefix(command, "BRIDGE ")

	matches := sendPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid send command format. Expected: 'send <amount> <token> [from <chain>] to <chain>' (e.g., 'send 100 OFT to amoy')")
	}

	return &SendRequest{
		Amount:    matches[1],
		Token:     matches[2],
		FromChain: strings.ToLower(matches[3]),
		ToChain:   strings.ToLower(matches[4]),
	}, nil
}

// ValidateSendRequest validates that a send request has all required fields
func ValidateSendRequest(req *SendRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.Token == "" {
		return fmt.Errorf("token is required")
	}
	if req.ToChain == "" {
		return fmt.Errorf("destination chain is required")
	}
	if req.FromChain != "" && req.FromChain == req.ToChain {
		return fmt.Errorf("source and destination chain must differ")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
