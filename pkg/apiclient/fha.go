package apiclient

import (
	"fmt"

	"github.com/marmos91/fhasched/pkg/api/handlers"
	"github.com/marmos91/fhasched/pkg/fha"
)

// TunablesUpdate is a partial tunables change. Nil fields keep the value
// currently set on the server.
type TunablesUpdate struct {
	Enabled           *bool `json:"enabled,omitempty"`
	BinShift          *uint `json:"bin_shift,omitempty"`
	MaxThreadsPerFile *int  `json:"max_threads_per_file,omitempty"`
	MaxReqsPerThread  *int  `json:"max_reqs_per_thread,omitempty"`
	MaxEntries        *int  `json:"max_entries,omitempty"`
	IdleScanLimit     *int  `json:"idle_scan_limit,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u TunablesUpdate) Empty() bool {
	return u.Enabled == nil && u.BinShift == nil && u.MaxThreadsPerFile == nil &&
		u.MaxReqsPerThread == nil && u.MaxEntries == nil && u.IdleScanLimit == nil
}

// Debug fetches the scheduler statistics dump. limit bounds the number of
// entries returned; 0 returns all of them.
func (c *Client) Debug(limit int) (*handlers.DebugResponse, error) {
	path := "/debug/fha"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp handlers.DebugResponse
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tunables fetches the live scheduler tunables.
func (c *Client) Tunables() (*fha.Tunables, error) {
	var t fha.Tunables
	if err := c.get("/tunables", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SetTunables applies a partial update and returns the resulting tunables.
func (c *Client) SetTunables(u TunablesUpdate) (*fha.Tunables, error) {
	var t fha.Tunables
	if err := c.put("/tunables", u, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Ready queries the readiness probe and returns the number of pool workers.
func (c *Client) Ready() (int, error) {
	var data struct {
		Workers int `json:"workers"`
	}
	if err := c.get("/health/ready", &data); err != nil {
		return 0, err
	}
	return data.Workers, nil
}
