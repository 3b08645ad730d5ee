package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// tokenFromMD returns the single non-empty value of key in the incoming metadata.
func tokenFromMD(ctx context.Context, key string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no metadata")
	}
	vals := md.Get(key)
	if len(vals) != 1 {
		return "", status.Errorf(codes.Unauthenticated, "expected one %s", key)
	}
	tok := strings.TrimSpace(vals[0])
	if tok == "" {
		return "", status.Errorf(codes.Unauthenticated, "empty %s", key)
	}
	return tok, nil
}
