package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/flagscore/gate/internal/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startBufconn(t *testing.T, cfg ServerConfig) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = gs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = gs.Stop(stopCtx)
		cancel()
	})

	return conn
}

func TestGRPC_CheckScenario(t *testing.T) {
	client := NewRateLimitClient(startBufconn(t, newTestConfig(t)))
	ctx := context.Background()

	for _, want := range []float64{2, 1, 0} {
		out, err := client.Check(ctx, limiter.PresetTest, "A")
		require.NoError(t, err)
		fields := out.GetFields()
		assert.True(t, fields["allowed"].GetBoolValue())
		assert.Equal(t, want, fields["remaining"].GetNumberValue())
		assert.Equal(t, float64(3), fields["limit"].GetNumberValue())
	}

	out, err := client.Check(ctx, limiter.PresetTest, "A")
	require.NoError(t, err)
	assert.False(t, out.GetFields()["allowed"].GetBoolValue())
	assert.Equal(t, limiter.TestMessage, out.GetFields()["message"].GetStringValue())
	assert.GreaterOrEqual(t, out.GetFields()["retry_after"].GetNumberValue(), float64(1))

	out, err = client.Check(ctx, limiter.PresetTest, "B")
	require.NoError(t, err)
	assert.True(t, out.GetFields()["allowed"].GetBoolValue())
}

func TestGRPC_StatusAndReset(t *testing.T) {
	client := NewRateLimitClient(startBufconn(t, newTestConfig(t)))
	ctx := context.Background()

	_, err := client.Check(ctx, limiter.PresetStrict, "A")
	require.NoError(t, err)

	out, err := client.Status(ctx, limiter.PresetStrict, "A")
	require.NoError(t, err)
	assert.Equal(t, float64(4), out.GetFields()["remaining"].GetNumberValue())

	out, err = client.Reset(ctx, limiter.PresetStrict, "A")
	require.NoError(t, err)
	assert.Equal(t, "rate limit reset", out.GetFields()["message"].GetStringValue())

	out, err = client.Status(ctx, limiter.PresetStrict, "A")
	require.NoError(t, err)
	assert.Equal(t, float64(5), out.GetFields()["remaining"].GetNumberValue())
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client := NewRateLimitClient(startBufconn(t, newTestConfig(t)))
	ctx := context.Background()

	_, err := client.Check(ctx, limiter.PresetTest, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Status(ctx, "nope", "A")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_Health(t *testing.T) {
	conn := startBufconn(t, newTestConfig(t))
	health := healthpb.NewHealthClient(conn)

	assert.Eventually(t, func() bool {
		resp, err := health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RateLimitServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}
