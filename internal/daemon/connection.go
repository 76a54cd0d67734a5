package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const connectionFileName = "connection.json"

// ConnectionInfo tells local clients where the endpoint server is listening.
// The daemon usually binds port 0, so the address is only knowable at
// runtime.
type ConnectionInfo struct {
	URL string `json:"url"`
}

// WriteConnectionFile publishes the endpoint URL under the state directory.
func WriteConnectionFile(stateDir, url string) error {
	raw, err := json.Marshal(ConnectionInfo{URL: url})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDir, connectionFileName), raw, 0o644)
}

// ReadConnectionFile loads the published endpoint URL.
func ReadConnectionFile(stateDir string) (ConnectionInfo, error) {
	raw, err := os.ReadFile(filepath.Join(stateDir, connectionFileName))
	if err != nil {
		return ConnectionInfo{}, err
	}
	var info ConnectionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ConnectionInfo{}, fmt.Errorf("corrupt connection file: %w", err)
	}
	return info, nil
}

// RemoveConnectionFile withdraws the published endpoint.
func RemoveConnectionFile(stateDir string) {
	_ = os.Remove(filepath.Join(stateDir, connectionFileName))
}
