package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/flagscore/gate/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RateLimitServiceName is the fully qualified gRPC service name
const RateLimitServiceName = "flagscore.ratelimit.v1.RateLimit"

const defaultHealthPoll = 5 * time.Second

// GRPCServer implements the Server interface for gRPC transport
type GRPCServer struct {
	server       *grpc.Server
	healthServer *health.Server
	address      string
	logger       *zap.Logger
	config       ServerConfig

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// NewGRPCServer creates a new gRPC server
func NewGRPCServer(cfg ServerConfig) *GRPCServer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HealthPoll <= 0 {
		cfg.HealthPoll = defaultHealthPoll
	}

	gs := &GRPCServer{
		server:       grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(cfg.Logger))),
		healthServer: health.NewServer(),
		address:      cfg.Address,
		logger:       cfg.Logger,
		config:       cfg,
	}

	gs.registerServices()
	return gs
}

// registerServices registers all gRPC services
func (gs *GRPCServer) registerServices() {
	healthpb.RegisterHealthServer(gs.server, gs.healthServer)
	gs.server.RegisterService(&rateLimitServiceDesc, &rateLimitServer{service: gs.config.RateLimit})
}

// Start listens on the configured address and serves in the background
func (gs *GRPCServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", gs.address)
	if err != nil {
		gs.logger.Error("Failed to listen on address", zap.String("address", gs.address), zap.Error(err))
		return err
	}

	gs.logger.Info("Starting gRPC server", zap.String("address", listener.Addr().String()))

	go func() {
		if err := gs.Serve(ctx, listener); err != nil {
			gs.logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	return nil
}

// Serve blocks serving on listener until Stop is called
func (gs *GRPCServer) Serve(ctx context.Context, listener net.Listener) error {
	healthCtx, cancel := context.WithCancel(ctx)

	gs.mu.Lock()
	gs.listener = listener
	gs.cancel = cancel
	gs.mu.Unlock()

	gs.refreshHealth(healthCtx)
	go gs.watchHealth(healthCtx)

	err := gs.server.Serve(listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop gracefully stops the gRPC server
func (gs *GRPCServer) Stop(ctx context.Context) error {
	gs.logger.Info("Stopping gRPC server")

	gs.mu.Lock()
	if gs.cancel != nil {
		gs.cancel()
	}
	gs.mu.Unlock()
	gs.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		gs.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		gs.server.Stop()
		return ctx.Err()
	}
}

// Addr returns the address the gRPC server is listening on
func (gs *GRPCServer) Addr() string {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.listener != nil {
		return gs.listener.Addr().String()
	}
	return gs.address
}

func (gs *GRPCServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(gs.config.HealthPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gs.refreshHealth(ctx)
		}
	}
}

func (gs *GRPCServer) refreshHealth(ctx context.Context) {
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if gs.config.Health == nil {
		servingStatus = healthpb.HealthCheckResponse_UNKNOWN
	} else if err := gs.config.Health.Ping(ctx); err != nil {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}

	gs.healthServer.SetServingStatus("", servingStatus)
	gs.healthServer.SetServingStatus(RateLimitServiceName, servingStatus)
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Debug("grpc request completed",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// RateLimitServer is the server API for the RateLimit service.
// Requests and responses are google.protobuf.Struct messages.
type RateLimitServer interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var rateLimitServiceDesc = grpc.ServiceDesc{
	ServiceName: RateLimitServiceName,
	HandlerType: (*RateLimitServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: unaryHandler("Check", RateLimitServer.Check)},
		{MethodName: "Status", Handler: unaryHandler("Status", RateLimitServer.Status)},
		{MethodName: "Reset", Handler: unaryHandler("Reset", RateLimitServer.Reset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flagscore/ratelimit/v1/ratelimit.proto",
}

func unaryHandler(method string, call func(RateLimitServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + RateLimitServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(RateLimitServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RateLimitServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// rateLimitServer implements RateLimitServer on top of the service layer
type rateLimitServer struct {
	service *service.RateLimitService
}

// Check consumes one request on a gate. A denial is a normal response with allowed=false.
func (rs *rateLimitServer) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	gate, key := gateAndKey(in)

	resp, err := rs.service.CheckLimit(ctx, service.CheckRequest{Gate: gate, Key: key, Method: "grpc", Path: "/" + RateLimitServiceName + "/Check"})
	if err != nil {
		return nil, toStatusError(err)
	}
	return decisionStruct(resp)
}

// Status reports the quota left without consuming it
func (rs *rateLimitServer) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	gate, key := gateAndKey(in)

	resp, err := rs.service.GetStatus(ctx, gate, key)
	if err != nil {
		return nil, toStatusError(err)
	}
	return decisionStruct(resp)
}

// Reset forgets a client on a gate
func (rs *rateLimitServer) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	gate, key := gateAndKey(in)

	if err := rs.service.ResetLimit(ctx, gate, key); err != nil {
		return nil, toStatusError(err)
	}

	return structpb.NewStruct(map[string]any{
		"message": "rate limit reset",
		"gate":    gate,
		"key":     key,
	})
}

func gateAndKey(in *structpb.Struct) (gate, key string) {
	fields := in.GetFields()
	return fields["gate"].GetStringValue(), fields["key"].GetStringValue()
}

func decisionStruct(resp *service.DecisionResponse) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{
		"gate":        resp.Gate,
		"key":         resp.Key,
		"allowed":     resp.Allowed,
		"limit":       resp.Limit,
		"remaining":   resp.Remaining,
		"reset_at":    resp.ResetAt,
		"retry_after": resp.RetryAfter,
		"message":     resp.Message,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode decision: %v", err)
	}
	return out, nil
}

func toStatusError(err error) error {
	switch {
	case service.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrGateNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// RateLimitClient calls the RateLimit service over an established connection
type RateLimitClient struct {
	cc grpc.ClientConnInterface
}

// NewRateLimitClient creates a new client for the RateLimit service
func NewRateLimitClient(cc grpc.ClientConnInterface) *RateLimitClient {
	return &RateLimitClient{cc: cc}
}

// Check calls RateLimit/Check
func (c *RateLimitClient) Check(ctx context.Context, gate, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Check", gate, key, opts...)
}

// Status calls RateLimit/Status
func (c *RateLimitClient) Status(ctx context.Context, gate, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Status", gate, key, opts...)
}

// Reset calls RateLimit/Reset
func (c *RateLimitClient) Reset(ctx context.Context, gate, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reset", gate, key, opts...)
}

func (c *RateLimitClient) invoke(ctx context.Context, method, gate, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"gate": gate, "key": key})
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+RateLimitServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
