package httpapi

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *HealthServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

// toggleProbe fails while err is set.
type toggleProbe struct {
	mu  sync.Mutex
	err error
}

func (p *toggleProbe) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *toggleProbe) Check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func checkHealth(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServerFollowsReadiness(t *testing.T) {
	probe := &toggleProbe{}
	srv := NewHealthServer(probe, time.Second)
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()
	client := healthpb.NewHealthClient(conn)

	if got := checkHealth(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first refresh, got %s", got)
	}

	if err := srv.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, service := range []string{"", serviceName} {
		if got := checkHealth(t, client, service); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%q: expected SERVING, got %s", service, got)
		}
	}

	probe.set(errProbe)
	if err := srv.Refresh(context.Background()); !errors.Is(err, errProbe) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if got := checkHealth(t, client, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after probe failure, got %s", got)
	}
}

func TestHealthServerRunStopsServingOnCancel(t *testing.T) {
	srv := NewHealthServer(&toggleProbe{}, 10*time.Millisecond)
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for checkHealth(t, client, "") != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("health never became SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
	if got := checkHealth(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %s", got)
	}
}

func TestHealthServerUnknownService(t *testing.T) {
	srv := NewHealthServer(ReadyProbe{}, time.Second)
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	if err == nil {
		t.Fatalf("expected NotFound for an unregistered service")
	}
}
