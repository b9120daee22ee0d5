package main

import (
	"context"
	"encoding/json"
	"os"
	"runtime"

	"github.com/hashicorp/go-plugin"

	providerrpc "gametrack/internal/modules/tracker/adapter/out/rpc"
)

// Fixture snapshot provider: serves a fixed process list, optionally
// loaded from the file named by GAMETRACK_FIXTURE_SNAPSHOT. Used for
// agent testing on hosts where scanning real processes is unwanted.
type server struct{}

func (s *server) Describe(_ context.Context, _ *providerrpc.Empty) (*providerrpc.Describe, error) {
	return &providerrpc.Describe{
		Name:     "fixture",
		Version:  "1.0.0",
		Platform: runtime.GOOS,
	}, nil
}

func (s *server) Snapshot(_ context.Context, _ *providerrpc.Empty) (*providerrpc.SnapshotResponse, error) {
	if path := os.Getenv("GAMETRACK_FIXTURE_SNAPSHOT"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		resp := &providerrpc.SnapshotResponse{}
		if err := json.Unmarshal(raw, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
	return &providerrpc.SnapshotResponse{Processes: []providerrpc.Process{
		{Name: "game.exe", PID: 4242},
		{Name: "launcher.exe", PID: 4243},
	}}, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: providerrpc.HandshakeConfig,
		Plugins:         providerrpc.ProviderMap(&server{}),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
