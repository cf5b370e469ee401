package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type attestationSolutionRequest struct {
	Solution json.RawMessage `json:"solution"`
}

// StartAttestation 发起证明挑战
func (c *Client) StartAttestation(ctx context.Context, payload json.RawMessage) (*AttestationChallenge, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/attestations", payload, true)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}
	var resp AttestationChallenge
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, fmt.Errorf("%w: empty attestation id", ErrResponseInvalid)
	}
	return &resp, nil
}

// ConfirmAttestation 提交挑战答案
func (c *Client) ConfirmAttestation(ctx context.Context, attestationID string, solution json.RawMessage) error {
	path := "/v1/attestations/" + url.PathEscape(attestationID)
	status, body, err := c.do(ctx, http.MethodPut, path, attestationSolutionRequest{Solution: solution}, true)
	if err != nil {
		return err
	}
	return statusError(status, body)
}
