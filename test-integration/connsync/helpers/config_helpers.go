package helpers

import (
	"net"
	"os"
	"path/filepath"

	"github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/connectors"
	"github.com/stacklok/connsync/internal/schedule"
)

// FakerConnection returns a manually scheduled connection reading from the faker source
func FakerConnection(id string, fakerConfig map[string]any) config.ConnectionConfig {
	return config.ConnectionConfig{
		ID:          id,
		Name:        id,
		Schedule:    schedule.Descriptor{Type: schedule.TypeManual},
		Source:      config.EndpointConfig{Type: connectors.TypeFaker, Config: fakerConfig},
		Destination: config.EndpointConfig{Type: connectors.TypeDevNull},
	}
}

// WriteConfigYAML writes a configuration with a SQLite ledger under dir and returns its path
func WriteConfigYAML(dir string, scheduler *config.SchedulerConfig, connections ...config.ConnectionConfig) string {
	cfg := config.Config{
		DataDir:     filepath.Join(dir, "data"),
		Storage:     &config.StorageConfig{Type: config.StorageTypeSQLite},
		SQLite:      &config.SQLiteConfig{Path: filepath.Join(dir, "ledger.db")},
		Scheduler:   scheduler,
		Connections: connections,
	}

	data, err := yaml.Marshal(&cfg)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, data, 0600)).To(gomega.Succeed())
	return path
}

// FreePort returns a TCP port that was free a moment ago
func FreePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = l.Close()
	}()
	return l.Addr().(*net.TCPAddr).Port
}
