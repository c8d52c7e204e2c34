package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/pkg/agent"
)

// remoteFlags selects an agent to talk to instead of the local host
type remoteFlags struct {
	addr string
	ca   string
	cert string
	key  string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "remote", "", "Talk to an agent at host:port instead of this host")
	cmd.Flags().StringVar(&f.ca, "ca", "", "CA certificate for a TLS agent")
	cmd.Flags().StringVar(&f.cert, "cert", "", "Client certificate for an mTLS agent")
	cmd.Flags().StringVar(&f.key, "key", "", "Client key for an mTLS agent")
}

func (f *remoteFlags) enabled() bool {
	return f.addr != ""
}

// client builds an agent client from the flags
func (f *remoteFlags) client() (*agent.Client, error) {
	host, portStr, err := net.SplitHostPort(f.addr)
	if err != nil {
		return nil, fmt.Errorf("invalid --remote %q: %w", f.addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --remote port %q: %w", portStr, err)
	}

	clientConfig := agent.DefaultClientConfig()
	clientConfig.Host = host
	clientConfig.Port = port
	clientConfig.CAFile = f.ca
	clientConfig.CertFile = f.cert
	clientConfig.KeyFile = f.key

	return agent.NewClient(clientConfig)
}
