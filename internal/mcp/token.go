package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"foldermcp/internal/model"
)

// tokenVersion guards continuation tokens across releases; a mismatch means
// the client is replaying a token from a different server build.
const tokenVersion = 1

// continuationToken is the decoded form of the opaque cursor handed to
// clients. Every field is revalidated when the token comes back.
type continuationToken struct {
	Endpoint   string `json:"endpoint"`
	DocumentID string `json:"document_id,omitempty"`
	Cursor     int    `json:"cursor"`
	Version    int    `json:"version"`
}

func encodeToken(t continuationToken) string {
	t.Version = tokenVersion
	raw, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeToken parses and validates a continuation token against the endpoint
// and document it must belong to.
func decodeToken(raw, endpoint, documentID string) (continuationToken, error) {
	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return continuationToken{}, fmt.Errorf("%w: malformed continuation token", model.ErrInvalidInput)
	}
	var t continuationToken
	if err := json.Unmarshal(buf, &t); err != nil {
		return continuationToken{}, fmt.Errorf("%w: malformed continuation token", model.ErrInvalidInput)
	}
	if t.Version != tokenVersion {
		return continuationToken{}, fmt.Errorf("%w: continuation token version %d", model.ErrInvalidInput, t.Version)
	}
	if t.Endpoint != endpoint {
		return continuationToken{}, fmt.Errorf("%w: continuation token for %q used on %q",
			model.ErrInvalidInput, t.Endpoint, endpoint)
	}
	if t.DocumentID != documentID {
		return continuationToken{}, fmt.Errorf("%w: continuation token document mismatch", model.ErrInvalidInput)
	}
	if t.Cursor < 0 {
		return continuationToken{}, fmt.Errorf("%w: negative continuation cursor", model.ErrInvalidInput)
	}
	return t, nil
}
