package out

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	"gametrack/internal/modules/agent/dto"
	agentout "gametrack/internal/modules/agent/port/out"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

type JSONRPCServer struct{}

type JSONRPCClient struct{}

func NewJSONRPCServer() agentout.IPCServer {
	return &JSONRPCServer{}
}

func NewJSONRPCClient() agentout.IPCClient {
	return &JSONRPCClient{}
}

type rpcHandler struct {
	h agentout.IPCHandler
}

type SessionsRecentReq struct {
	Limit int
}

type ChangeSubjectReq struct {
	SubjectID string
}

type Empty struct{}

func (s *rpcHandler) Status(_ Empty, resp *dto.StatusOutput) error {
	status, err := s.h.Status(context.Background())
	if err != nil {
		return err
	}
	*resp = status
	return nil
}

func (s *rpcHandler) SessionsRecent(req SessionsRecentReq, resp *[]sessionsdto.SessionOutput) error {
	sessions, err := s.h.SessionsRecent(context.Background(), req.Limit)
	if err != nil {
		return err
	}
	*resp = sessions
	return nil
}

func (s *rpcHandler) SyncNow(_ Empty, resp *dto.SyncNowOutput) error {
	out, err := s.h.SyncNow(context.Background())
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) CatalogReload(_ Empty, resp *catalogdto.CatalogStatusOutput) error {
	out, err := s.h.CatalogReload(context.Background())
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) ChangeSubject(req ChangeSubjectReq, _ *Empty) error {
	return s.h.ChangeSubject(context.Background(), req.SubjectID)
}

func (s *rpcHandler) Stop(_ Empty, _ *Empty) error {
	return s.h.Stop(context.Background())
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler agentout.IPCHandler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("Agent", &rpcHandler{h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (c *JSONRPCClient) Status(ctx context.Context, socketPath string) (dto.StatusOutput, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return dto.StatusOutput{}, err
	}
	defer client.Close()
	resp := dto.StatusOutput{}
	if err := client.Call("Agent.Status", Empty{}, &resp); err != nil {
		return dto.StatusOutput{}, err
	}
	return resp, nil
}

func (c *JSONRPCClient) SessionsRecent(ctx context.Context, socketPath string, limit int) ([]sessionsdto.SessionOutput, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	resp := []sessionsdto.SessionOutput{}
	if err := client.Call("Agent.SessionsRecent", SessionsRecentReq{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *JSONRPCClient) SyncNow(ctx context.Context, socketPath string) (dto.SyncNowOutput, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return dto.SyncNowOutput{}, err
	}
	defer client.Close()
	resp := dto.SyncNowOutput{}
	if err := client.Call("Agent.SyncNow", Empty{}, &resp); err != nil {
		return dto.SyncNowOutput{}, err
	}
	return resp, nil
}

func (c *JSONRPCClient) CatalogReload(ctx context.Context, socketPath string) (catalogdto.CatalogStatusOutput, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return catalogdto.CatalogStatusOutput{}, err
	}
	defer client.Close()
	resp := catalogdto.CatalogStatusOutput{}
	if err := client.Call("Agent.CatalogReload", Empty{}, &resp); err != nil {
		return catalogdto.CatalogStatusOutput{}, err
	}
	return resp, nil
}

func (c *JSONRPCClient) ChangeSubject(ctx context.Context, socketPath string, subjectID string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("Agent.ChangeSubject", ChangeSubjectReq{SubjectID: subjectID}, &Empty{})
}

func (c *JSONRPCClient) Stop(ctx context.Context, socketPath string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("Agent.Stop", Empty{}, &Empty{})
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)), nil
}
