package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"foldermcp/internal/daemon"
	"foldermcp/internal/mcp"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the running daemon",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	stateDir, err := resolveStateDir()
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	record, err := daemon.ReadPIDFile(stateDir)
	if err != nil {
		exitWith(ExitGenericError, "daemon is not running")
	}
	conn, err := daemon.ReadConnectionFile(stateDir)
	if err != nil {
		exitWith(ExitGenericError, fmt.Sprintf("daemon pid %d found but no endpoint published", record.PID))
	}

	env, err := rpcCall(conn.URL, "get_status", map[string]any{})
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	if globalFlags.JSON {
		raw, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	fmt.Printf("daemon:   pid %d, version %s, started %s\n", record.PID, record.Version, record.StartTime)
	fmt.Printf("endpoint: %s\n", conn.URL)
	fmt.Printf("status:   %v (%v%%) %v\n", env.Data["status"], env.Data["progress"], env.Data["message"])
	return nil
}

// rpcCall issues one JSON-RPC request to the daemon endpoint.
func rpcCall(url, method string, params any) (mcp.Envelope, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return mcp.Envelope{}, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return mcp.Envelope{}, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Result *mcp.Envelope `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return mcp.Envelope{}, fmt.Errorf("malformed response: %w", err)
	}
	if out.Error != nil {
		return mcp.Envelope{}, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return mcp.Envelope{}, fmt.Errorf("empty rpc result")
	}
	return *out.Result, nil
}
