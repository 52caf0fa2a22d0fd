package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tilelight.ai/internal/persistence/indexdb"
	"tilelight.ai/internal/sim/world"
)

type stateResponse struct {
	State   world.StateSnapshot `json:"state"`
	Metrics world.WorldMetrics  `json:"metrics"`
	Index   *indexdb.Stats      `json:"index,omitempty"`
}

type snapshotResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Path    string `json:"path"`
	Tick    uint64 `json:"tick"`
	Focuses int    `json:"focuses"`
	Edits   int    `json:"edits"`
}

// adminRequest calls path on the server and returns the body of a 2xx reply.
// Non-2xx replies come back as an error carrying the server's message.
func adminRequest(method, baseURL, path string, timeout time.Duration) ([]byte, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return b, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return b, fmt.Errorf("%s", resp.Status)
	}
	return b, nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the JSON body as returned")
	_ = fs.Parse(args)

	b, err := adminRequest(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(b))
		return
	}
	var resp stateResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		fmt.Fprintln(os.Stderr, "decode state:", err)
		os.Exit(1)
	}
	printState(os.Stdout, resp)
}

func printState(w io.Writer, resp stateResponse) {
	st := resp.State
	fmt.Fprintf(w, "run %s tick %d step %.2fms\n", st.RunID, st.Tick, resp.Metrics.StepMS)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tLOADED\tREQUESTED\tPENDING\tQUEUED\tFAILED")
	for _, m := range st.Maps {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", m.Name, m.Loaded, m.Requested, m.Pending, m.QueuedWrites, m.Failed)
	}
	_ = tw.Flush()

	if len(st.Focuses) == 0 {
		fmt.Fprintln(w, "no focuses")
	}
	for _, f := range st.Focuses {
		blocked := ""
		if f.Blocked {
			blocked = " blocked"
		}
		fmt.Fprintf(w, "focus %s tile (%d,%d) light %v%s\n", f.ID, f.Tile[0], f.Tile[1], f.Light, blocked)
	}
	if ix := resp.Index; ix != nil {
		fmt.Fprintf(w, "index queue %d/%d dropped %d failed tx %d\n", ix.QueueDepth, ix.QueueCapacity, ix.DropTickTotal, ix.FailedTxTotal)
	}
}

// snapshotCmd asks a running server to write a snapshot now.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	b, err := adminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", 10*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}
	var resp snapshotResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		fmt.Fprintln(os.Stderr, "decode snapshot:", err)
		os.Exit(1)
	}
	printSnapshot(os.Stdout, resp)
}

func printSnapshot(w io.Writer, resp snapshotResponse) {
	fmt.Fprintf(w, "snapshot tick %d written to %s (%d focuses, %d edits)\n", resp.Tick, resp.Path, resp.Focuses, resp.Edits)
}
