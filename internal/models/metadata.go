package models

import (
	"encoding/json"
	"fmt"
)

// VaultMetadata is stored in clear next to the blob so a newer server-side
// revision can be detected without decrypting anything.
type VaultMetadata struct {
	PublicEmailDomains  []string `json:"publicEmailDomains"`
	PrivateEmailDomains []string `json:"privateEmailDomains"`
	VaultRevisionNumber int      `json:"vaultRevisionNumber"`
}

func ParseVaultMetadata(data []byte) (*VaultMetadata, error) {
	var md VaultMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse vault metadata: %w", err)
	}
	return &md, nil
}

// JSON encodes md. Nil slices are written as empty arrays.
func (md VaultMetadata) JSON() ([]byte, error) {
	if md.PublicEmailDomains == nil {
		md.PublicEmailDomains = []string{}
	}
	if md.PrivateEmailDomains == nil {
		md.PrivateEmailDomains = []string{}
	}
	return json.Marshal(md)
}
