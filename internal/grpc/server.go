//go:build grpcserver

package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	fulfillmentv1 "orderFulfillmentTracking/api/fulfillment/v1"
	"orderFulfillmentTracking/internal/auth"
	"orderFulfillmentTracking/internal/config"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// StartGRPC starts the gRPC server on the configured address and returns a
// shutdown function. Both unary and streaming RPCs go through the JWT
// interceptors.
func StartGRPC(cfg *config.Config, srvImpl *FulfillmentServer) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Allow plaintext for simplicity; in production, configure TLS.
	_ = insecure.NewCredentials

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(cfg.Auth.JWTSecret, healthCheckMethod)),
		grpc.StreamInterceptor(auth.NewStreamAuthInterceptor(cfg.Auth.JWTSecret)),
	)

	fulfillmentv1.RegisterFulfillmentServiceServer(srv, srvImpl)

	go func() { _ = srv.Serve(lis) }()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
