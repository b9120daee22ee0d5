package out

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"gametrack/internal/modules/tracker/adapter/out/rpc"
	"gametrack/internal/modules/tracker/domain"
	trackerout "gametrack/internal/modules/tracker/port/out"
)

const (
	providerStartTimeout = 3 * time.Second
	providerCallTimeout  = 5 * time.Second
)

// PluginSnapshotSource hosts an out-of-process snapshot provider: the
// way platform-specific enumerators ship without this binary linking
// every platform API. The provider process is started lazily and reused
// across polls; a failed call tears it down so the next poll restarts it.
type PluginSnapshotSource struct {
	binary string

	mu     sync.Mutex
	client *plugin.Client
	rpc    rpc.SnapshotProviderClient
}

func NewPluginSnapshotSource(binary string) *PluginSnapshotSource {
	return &PluginSnapshotSource{binary: binary}
}

var _ trackerout.SnapshotSource = (*PluginSnapshotSource)(nil)

func (s *PluginSnapshotSource) Snapshot(ctx context.Context) ([]domain.Process, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()
	response, err := client.Snapshot(callCtx)
	if err != nil {
		s.disconnect()
		return nil, fmt.Errorf("provider snapshot: %w", err)
	}

	processes := make([]domain.Process, 0, len(response.Processes))
	for _, proc := range response.Processes {
		processes = append(processes, domain.Process{Name: proc.Name, PID: int(proc.PID)})
	}
	return processes, nil
}

func (s *PluginSnapshotSource) Close() {
	s.disconnect()
}

func (s *PluginSnapshotSource) connect() (rpc.SnapshotProviderClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rpc != nil {
		return s.rpc, nil
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  rpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          rpc.ProviderMap(nil),
		Cmd:              exec.Command(s.binary),
		Managed:          true,
		StartTimeout:     providerStartTimeout,
		Logger:           hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel}),
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start snapshot provider: %w", err)
	}
	raw, err := rpcClient.Dispense(rpc.ProviderMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense snapshot provider: %w", err)
	}
	typed, ok := raw.(rpc.SnapshotProviderClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("snapshot provider rpc client type mismatch")
	}
	s.client = client
	s.rpc = typed
	return typed, nil
}

func (s *PluginSnapshotSource) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Kill()
	}
	s.client = nil
	s.rpc = nil
}
