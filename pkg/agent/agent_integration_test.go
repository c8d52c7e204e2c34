//go:build integration
// +build integration

package agent

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mscrnt/homecards/pkg/cert"
	"github.com/mscrnt/homecards/pkg/condition"
	"github.com/mscrnt/homecards/pkg/db"
)

// TestAgentIntegration runs the server with mTLS and talks to it with the client
func TestAgentIntegration(t *testing.T) {
	tempDir := t.TempDir()

	caFile, serverCertFile, serverKeyFile, clientCertFile, clientKeyFile := generateTestCertificates(t, tempDir)

	port := findAvailablePort(t)

	manager, err := condition.New([]condition.Controller{&stubController{id: 1001, show: true}})
	if err != nil {
		t.Fatal(err)
	}
	store, err := db.Open(filepath.Join(tempDir, "cards.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	snapshot := NewSnapshot()
	snapshot.Update(manager.DisplayableCards(context.Background()))

	serverConfig := DefaultConfig()
	serverConfig.Port = port
	serverConfig.CertFile = serverCertFile
	serverConfig.KeyFile = serverKeyFile
	serverConfig.CAFile = caFile
	serverConfig.LogFile = filepath.Join(tempDir, "agent.log")

	server, err := NewServer(serverConfig, Backend{
		Snapshot:   snapshot,
		Registry:   manager,
		Dismissals: store,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	clientConfig := ClientConfig{
		Host:     "localhost",
		Port:     port,
		CAFile:   caFile,
		CertFile: clientCertFile,
		KeyFile:  clientKeyFile,
		Timeout:  5 * time.Second,
	}
	client, err := NewClient(clientConfig)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	ctx := context.Background()

	t.Run("health_check", func(t *testing.T) {
		if err := client.CheckHealth(ctx); err != nil {
			t.Errorf("health check failed: %v", err)
		}
	})

	t.Run("cards", func(t *testing.T) {
		resp, err := client.Cards(ctx)
		if err != nil {
			t.Fatalf("failed to fetch cards: %v", err)
		}
		if len(resp.Cards) != 1 {
			t.Errorf("expected one card, got %d", len(resp.Cards))
		}
	})

	t.Run("rejects_client_without_certificate", func(t *testing.T) {
		anon, err := NewClient(ClientConfig{Host: "localhost", Port: port, CAFile: caFile, Timeout: 5 * time.Second})
		if err != nil {
			t.Fatal(err)
		}
		if err := anon.CheckHealth(ctx); err == nil {
			t.Error("expected the handshake to fail without a client certificate")
		}
	})

	if err := server.Shutdown(context.TODO()); err != nil {
		t.Errorf("failed to shutdown server: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Errorf("server returned error: %v", err)
	}

	logData, err := os.ReadFile(serverConfig.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(logData) == 0 {
		t.Error("request log file is empty")
	}
}

// findAvailablePort finds an available port for testing
func findAvailablePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

// generateTestCertificates issues a CA plus server and client certificates into dir
func generateTestCertificates(t *testing.T, dir string) (caFile, serverCertFile, serverKeyFile, clientCertFile, clientKeyFile string) {
	t.Helper()

	issuer, err := cert.NewIssuer()
	if err != nil {
		t.Fatal(err)
	}
	caFile = filepath.Join(dir, "ca.pem")
	if err := issuer.SaveCA(caFile, filepath.Join(dir, "ca-key.pem")); err != nil {
		t.Fatal(err)
	}

	issue := func(req cert.Request, name string) (string, string) {
		c, err := issuer.Issue(req)
		if err != nil {
			t.Fatal(err)
		}
		certPath := filepath.Join(dir, name+".pem")
		keyPath := filepath.Join(dir, name+"-key.pem")
		if err := c.Save(certPath, keyPath); err != nil {
			t.Fatal(err)
		}
		return certPath, keyPath
	}

	serverCertFile, serverKeyFile = issue(cert.Request{
		Role:     cert.RoleServer,
		Hosts:    []string{"localhost", "127.0.0.1"},
		Validity: time.Hour,
	}, "server")
	clientCertFile, clientKeyFile = issue(cert.Request{
		Role:       cert.RoleClient,
		CommonName: "integration",
		Validity:   time.Hour,
	}, "client")

	return
}
