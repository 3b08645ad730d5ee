// Package grpcserver exposes the internal access checks used by the media-storage service.
package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/service"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server wires services into gRPC handlers.
type Server struct {
	broker service.TokenBroker
	vault  service.VaultGuard
}

var _ AccessBrokerServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(broker service.TokenBroker, vault service.VaultGuard) *Server {
	return &Server{broker: broker, vault: vault}
}

// CheckMedia authorizes an encrypted-bytes fetch.
func (s *Server) CheckMedia(ctx context.Context, req *CheckMediaRequest) (*CheckResponse, error) {
	return s.checkResource(ctx, MediaTokenMD, model.ScopeMediaRead, req.ResourceID)
}

// CheckShare authorizes a fetch bridged from a share redemption.
func (s *Server) CheckShare(ctx context.Context, req *CheckShareRequest) (*CheckResponse, error) {
	return s.checkResource(ctx, ShareTokenMD, model.ScopeShareRedeem, req.ResourceID)
}

func (s *Server) checkResource(ctx context.Context, key string, scope model.Scope, resourceID string) (*CheckResponse, error) {
	if resourceID == "" {
		return nil, status.Error(codes.InvalidArgument, "empty resource_id")
	}
	tok, err := tokenFromMD(ctx, key)
	if err != nil {
		return nil, err
	}
	at, err := s.broker.Check(ctx, tok, scope, resourceID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &CheckResponse{ResourceID: at.ResourceID, ExpiresAt: at.ExpiresAt.UTC()}
	if at.IssuedTo != uuid.Nil {
		resp.IssuedTo = at.IssuedTo.String()
	}
	return resp, nil
}

// CheckVault confirms a vault token is the user's current session.
func (s *Server) CheckVault(ctx context.Context, req *CheckVaultRequest) (*CheckVaultResponse, error) {
	userID, err := uuid.FromString(req.UserID)
	if err != nil || userID == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "bad user_id")
	}
	tok, err := tokenFromMD(ctx, VaultTokenMD)
	if err != nil {
		return nil, err
	}
	at, err := s.vault.Authorize(ctx, userID, tok)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckVaultResponse{UserID: userID.String(), ExpiresAt: at.ExpiresAt.UTC()}, nil
}

// toStatus maps access errors to gRPC codes. Details of internal failures are not sent.
func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "token not found")
	case errors.Is(err, errs.ErrExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, errs.ErrRevoked):
		return status.Error(codes.Unauthenticated, "token revoked")
	case errors.Is(err, errs.ErrScopeMismatch):
		return status.Error(codes.PermissionDenied, "scope mismatch")
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, "invalid argument")
	case errors.Is(err, errs.ErrUnavailable):
		return status.Error(codes.Unavailable, "storage unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "internal")
	}
}
