package vault

import (
	"encoding/json"

	"github.com/maheshrc27/reshare/internal/apperrors"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// StateToken is the payload carried in the OAuth state parameter.
type StateToken struct {
	TenantKey string `json:"t"`
	Nonce     string `json:"n"`
	Provider  string `json:"p,omitempty"`
}

func (v *Vault) IssueState(tenantKey, provider string) (string, error) {
	nonce, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(StateToken{
		TenantKey: tenantKey,
		Nonce:     nonce,
		Provider:  provider,
	})
	if err != nil {
		return "", err
	}
	return v.Encrypt(payload)
}

// OpenState validates a state token. Tampering, expiry and malformed payloads
// all yield apperrors.ErrInvalidStateToken.
func (v *Vault) OpenState(token string) (*StateToken, error) {
	payload, err := v.Decrypt(token, v.stateTTL)
	if err != nil {
		return nil, apperrors.ErrInvalidStateToken
	}

	var st StateToken
	if err := json.Unmarshal(payload, &st); err != nil || st.TenantKey == "" || st.Nonce == "" {
		return nil, apperrors.ErrInvalidStateToken
	}
	return &st, nil
}
