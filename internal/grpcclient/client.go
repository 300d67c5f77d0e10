package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/id-bridge/internal/imagecodec"
	"github.com/example/id-bridge/internal/imageprocessor"
	"github.com/example/id-bridge/internal/logging"
)

// EvaluateMethod is the full gRPC method name served by the image-preparation sidecar.
const EvaluateMethod = "/imageprep.v1.ImagePreparation/Evaluate"

// DialImageProcessor returns a ready-to-use gRPC client for the image-preparation sidecar.
func DialImageProcessor(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (imageprocessor.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_image_processor", "", err)
		logger.Error("failed to dial image processor", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewImageProcessor(conn, logger), conn, nil
}

// NewImageProcessor adapts an existing connection.
func NewImageProcessor(conn grpc.ClientConnInterface, logger *zap.Logger) imageprocessor.Client {
	return &grpcImageProcessor{conn: conn, logger: logger.Named("imageprep")}
}

type grpcImageProcessor struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcImageProcessor) Evaluate(ctx context.Context, requestID string, raw []byte) (*imageprocessor.EvaluatedImage, error) {
	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, EvaluateMethod, wrapperspb.Bytes(raw), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.evaluate_image", requestID, err)
		g.logger.Error("image evaluation call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	fields := resp.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return nil, logging.NewOperationError("grpcclient.evaluate_image", requestID, errors.New(msg))
	}
	cropped, err := imagecodec.DecodeBytes(fields["image"].GetStringValue())
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.evaluate_image", requestID, fmt.Errorf("decode cropped image: %w", err))
	}
	if len(cropped) == 0 {
		return nil, logging.NewOperationError("grpcclient.evaluate_image", requestID, errors.New("empty cropped image"))
	}

	return &imageprocessor.EvaluatedImage{
		Sharpness: int(fields["sharpness"].GetNumberValue()),
		Glare:     int(fields["glare"].GetNumberValue()),
		DPI:       int(fields["dpi"].GetNumberValue()),
		Image:     cropped,
	}, nil
}
