// Package grpcserver hosts the FulfillmentService gRPC surface. The server
// files are gated behind the grpcserver build tag because they depend on
// generated stubs; run go generate first, then build with -tags grpcserver.
package grpcserver

//go:generate protoc --proto_path=../../api/proto --go_out=../../api --go_opt=paths=source_relative --go-grpc_out=../../api --go-grpc_opt=paths=source_relative fulfillment/v1/fulfillment.proto
