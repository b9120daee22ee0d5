package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	ProviderMapKey = "gametrack"
	serviceName    = "gametrack.provider.v1.SnapshotProvider"
	jsonCodecName  = "json"
	methodDescribe = "/" + serviceName + "/Describe"
	methodSnapshot = "/" + serviceName + "/Snapshot"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GAMETRACK_PROVIDER",
	MagicCookieValue: "gametrack",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Describe struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type Process struct {
	Name string `json:"name"`
	PID  int32  `json:"pid"`
}

type SnapshotResponse struct {
	Processes []Process `json:"processes"`
}

type SnapshotProviderServer interface {
	Describe(ctx context.Context, in *Empty) (*Describe, error)
	Snapshot(ctx context.Context, in *Empty) (*SnapshotResponse, error)
}

type SnapshotProviderClient interface {
	Describe(ctx context.Context) (*Describe, error)
	Snapshot(ctx context.Context) (*SnapshotResponse, error)
}

type snapshotProviderClient struct {
	conn *grpc.ClientConn
}

func NewSnapshotProviderClient(conn *grpc.ClientConn) SnapshotProviderClient {
	return &snapshotProviderClient{conn: conn}
}

func (c *snapshotProviderClient) Describe(ctx context.Context) (*Describe, error) {
	out := &Describe{}
	if err := c.conn.Invoke(ctx, methodDescribe, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *snapshotProviderClient) Snapshot(ctx context.Context) (*SnapshotResponse, error) {
	out := &SnapshotResponse{}
	if err := c.conn.Invoke(ctx, methodSnapshot, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterSnapshotProviderServer(server grpc.ServiceRegistrar, impl SnapshotProviderServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*SnapshotProviderServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Describe",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Describe(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDescribe}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Describe(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Snapshot",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Snapshot(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSnapshot}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Snapshot(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "schemas/provider-rpc-v1.proto",
	}, impl)
}

type GRPCProvider struct {
	plugin.NetRPCUnsupportedPlugin
	Impl SnapshotProviderServer
}

func (p *GRPCProvider) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterSnapshotProviderServer(server, p.Impl)
	return nil
}

func (p *GRPCProvider) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewSnapshotProviderClient(conn), nil
}

func ProviderMap(impl SnapshotProviderServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		ProviderMapKey: &GRPCProvider{Impl: impl},
	}
}
