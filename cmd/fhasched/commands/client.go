package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/marmos91/fhasched/pkg/apiclient"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/spf13/cobra"
)

// addServerFlag registers --server on a command that talks to a running
// instance.
func addServerFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "server", "s", "", "Admin API URL (default: derived from the api section of the config)")
}

// newClient returns an API client for server, or for the address configured
// in the api section when server is empty.
func newClient(server string) (*apiclient.Client, error) {
	if server != "" {
		return apiclient.New(server), nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	host := cfg.API.Address
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return apiclient.New(fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(cfg.API.Port)))), nil
}
