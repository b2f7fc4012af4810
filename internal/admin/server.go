package admin

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/tcpchat/internal/admin/adminv1"
	"github.com/cory-johannsen/tcpchat/internal/config"
)

// AuthorizationKey is the metadata key carrying the operator token.
const AuthorizationKey = "authorization"

// Server runs the admin gRPC service. It satisfies server.Service.
type Server struct {
	cfg    config.AdminConfig
	grpc   *grpc.Server
	logger *zap.Logger
}

// NewServer creates an admin server for op. When cfg.Token is set every call
// must carry it in the authorization metadata.
//
// Precondition: op and logger must be non-nil.
func NewServer(cfg config.AdminConfig, op Operator, logger *zap.Logger) *Server {
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		tokenInterceptor(cfg.Token),
	))
	adminv1.RegisterAdminServiceServer(g, NewService(op))
	return &Server{cfg: cfg, grpc: g, logger: logger}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("admin server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop drains in-flight calls and stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func tokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(AuthorizationKey)
		if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(token)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(ctx, req)
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("admin call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}
