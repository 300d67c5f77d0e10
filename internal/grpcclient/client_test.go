package grpcclient

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/id-bridge/internal/imagecodec"
)

// startSidecar serves EvaluateMethod through the unknown-service hook so no
// generated stubs are needed.
func startSidecar(t *testing.T, reply func(raw []byte) (*structpb.Struct, error)) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ interface{}, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != EvaluateMethod {
			return status.Errorf(codes.Unimplemented, "unknown method %s", method)
		}
		req := &wrapperspb.BytesValue{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		resp, err := reply(req.GetValue())
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dialBuf(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	client, conn, err := DialImageProcessor(context.Background(), "bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEvaluateReturnsScoresAndCroppedImage(t *testing.T) {
	lis := startSidecar(t, func(raw []byte) (*structpb.Struct, error) {
		if string(raw) != "raw-capture" {
			t.Errorf("unexpected payload %q", raw)
		}
		return structpb.NewStruct(map[string]interface{}{
			"sharpness": 81,
			"glare":     92,
			"dpi":       600,
			"image":     imagecodec.EncodeBytes([]byte("cropped")),
		})
	})
	conn := dialBuf(t, lis)

	got, err := NewImageProcessor(conn, zap.NewNop()).Evaluate(context.Background(), "req-1", []byte("raw-capture"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sharpness != 81 || got.Glare != 92 || got.DPI != 600 {
		t.Fatalf("unexpected scores: %+v", got)
	}
	if string(got.Image) != "cropped" {
		t.Fatalf("unexpected cropped image: %q", got.Image)
	}
}

func TestEvaluateSurfacesSidecarError(t *testing.T) {
	lis := startSidecar(t, func(raw []byte) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]interface{}{"error": "could not crop"})
	})
	conn := dialBuf(t, lis)

	if _, err := NewImageProcessor(conn, zap.NewNop()).Evaluate(context.Background(), "req-2", []byte("raw")); err == nil {
		t.Fatal("expected error for sidecar-reported failure")
	}
}

func TestEvaluateSurfacesTransportError(t *testing.T) {
	lis := startSidecar(t, func(raw []byte) (*structpb.Struct, error) {
		return nil, status.Error(codes.Internal, "boom")
	})
	conn := dialBuf(t, lis)

	_, err := NewImageProcessor(conn, zap.NewNop()).Evaluate(context.Background(), "req-3", []byte("raw"))
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal status, got %v", err)
	}
}
