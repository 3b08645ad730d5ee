package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying bearer tokens. Tokens never travel in messages.
const (
	MediaTokenMD = "x-media-token"
	ShareTokenMD = "x-share-token"
	VaultTokenMD = "x-vault-token"
)

const serviceName = "mediavault.v1.AccessBroker"

// Full method names.
const (
	CheckMediaMethod = "/" + serviceName + "/CheckMedia"
	CheckShareMethod = "/" + serviceName + "/CheckShare"
	CheckVaultMethod = "/" + serviceName + "/CheckVault"
)

// CheckMediaRequest asks whether the x-media-token grants reading resource_id.
type CheckMediaRequest struct {
	ResourceID string `json:"resource_id"`
}

// CheckShareRequest asks whether the x-share-token grants reading resource_id.
type CheckShareRequest struct {
	ResourceID string `json:"resource_id"`
}

// CheckResponse describes the token that authorized a resource fetch.
type CheckResponse struct {
	ResourceID string    `json:"resource_id"`
	IssuedTo   string    `json:"issued_to,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CheckVaultRequest asks whether the x-vault-token is user_id's live vault session.
type CheckVaultRequest struct {
	UserID string `json:"user_id"`
}

type CheckVaultResponse struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccessBrokerServer is the server API of mediavault.v1.AccessBroker.
type AccessBrokerServer interface {
	CheckMedia(ctx context.Context, req *CheckMediaRequest) (*CheckResponse, error)
	CheckShare(ctx context.Context, req *CheckShareRequest) (*CheckResponse, error)
	CheckVault(ctx context.Context, req *CheckVaultRequest) (*CheckVaultResponse, error)
}

// AccessBrokerServiceDesc describes the service for grpc.Server.RegisterService.
var AccessBrokerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AccessBrokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckMedia", Handler: checkMediaHandler},
		{MethodName: "CheckShare", Handler: checkShareHandler},
		{MethodName: "CheckVault", Handler: checkVaultHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mediavault/v1/access_broker.json",
}

// Register attaches srv to the gRPC registrar.
func Register(r grpc.ServiceRegistrar, srv AccessBrokerServer) {
	r.RegisterService(&AccessBrokerServiceDesc, srv)
}

func checkMediaHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckMediaRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if ic == nil {
		return srv.(AccessBrokerServer).CheckMedia(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckMediaMethod}
	return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccessBrokerServer).CheckMedia(ctx, req.(*CheckMediaRequest))
	})
}

func checkShareHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckShareRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if ic == nil {
		return srv.(AccessBrokerServer).CheckShare(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckShareMethod}
	return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccessBrokerServer).CheckShare(ctx, req.(*CheckShareRequest))
	})
}

func checkVaultHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckVaultRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if ic == nil {
		return srv.(AccessBrokerServer).CheckVault(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckVaultMethod}
	return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccessBrokerServer).CheckVault(ctx, req.(*CheckVaultRequest))
	})
}

// Client calls mediavault.v1.AccessBroker. The media-storage collaborator uses it
// before returning bytes.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) CheckMedia(ctx context.Context, token, resourceID string) (*CheckResponse, error) {
	out := new(CheckResponse)
	ctx = metadata.AppendToOutgoingContext(ctx, MediaTokenMD, token)
	if err := c.cc.Invoke(ctx, CheckMediaMethod, &CheckMediaRequest{ResourceID: resourceID}, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckShare(ctx context.Context, token, resourceID string) (*CheckResponse, error) {
	out := new(CheckResponse)
	ctx = metadata.AppendToOutgoingContext(ctx, ShareTokenMD, token)
	if err := c.cc.Invoke(ctx, CheckShareMethod, &CheckShareRequest{ResourceID: resourceID}, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckVault(ctx context.Context, token, userID string) (*CheckVaultResponse, error) {
	out := new(CheckVaultResponse)
	ctx = metadata.AppendToOutgoingContext(ctx, VaultTokenMD, token)
	if err := c.cc.Invoke(ctx, CheckVaultMethod, &CheckVaultRequest{UserID: userID}, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}
