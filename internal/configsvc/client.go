package configsvc

import (
	"context"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls radioemu.v1.ConfigService with typed messages.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Lock locks a parameter; set req.Apply to also configure the hardware.
func (c *Client) Lock(ctx context.Context, req LockRequest, opts ...grpc.CallOption) (LockReply, error) {
	var reply LockReply
	err := c.call(ctx, LockFullMethodName, req, &reply, opts...)
	return reply, err
}

// Unlock releases one lock.
func (c *Client) Unlock(ctx context.Context, radio, param string, opts ...grpc.CallOption) error {
	return c.call(ctx, UnlockFullMethodName, ParamRequest{Radio: radio, Param: param}, nil, opts...)
}

// UnlockAll releases every lock of a radio.
func (c *Client) UnlockAll(ctx context.Context, radio string, opts ...grpc.CallOption) error {
	return c.call(ctx, UnlockAllFullMethodName, RadioRequest{Radio: radio}, nil, opts...)
}

// GetRanges returns feasible regions; no params means all of them.
func (c *Client) GetRanges(ctx context.Context, radio string, params []string, opts ...grpc.CallOption) (RangesReply, error) {
	var reply RangesReply
	err := c.call(ctx, GetRangesFullMethodName, RangesRequest{Radio: radio, Params: params}, &reply, opts...)
	return reply, err
}

// ListRadios lists the radios served.
func (c *Client) ListRadios(ctx context.Context, opts ...grpc.CallOption) (RadiosReply, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(withRequestID(ctx), ListRadiosFullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return RadiosReply{}, err
	}
	var reply RadiosReply
	err := Decode(out, &reply)
	return reply, err
}

// call sends req and decodes the reply into out; a nil out expects Empty.
func (c *Client) call(ctx context.Context, method string, req, out any, opts ...grpc.CallOption) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}

	var resp proto.Message = &emptypb.Empty{}
	if out != nil {
		resp = &structpb.Struct{}
	}
	if err := c.cc.Invoke(withRequestID(ctx), method, in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return Decode(resp.(*structpb.Struct), out)
}

// withRequestID forwards a request id already on ctx as metadata.
func withRequestID(ctx context.Context) context.Context {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
	}
	return ctx
}
