package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"jobmate/leads-service/internal/pipeline"
)

const (
	getRequestMethod   = "/" + ServiceName + "/GetRequest"
	abortRequestMethod = "/" + ServiceName + "/AbortRequest"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScrapeRequestsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRequest", Handler: getRequestHandler},
		{MethodName: "AbortRequest", Handler: abortRequestHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func getRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScrapeRequestsServer).GetRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getRequestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScrapeRequestsServer).GetRequest(ctx, req.(*GetRequestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func abortRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AbortRequestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScrapeRequestsServer).AbortRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: abortRequestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScrapeRequestsServer).AbortRequest(ctx, req.(*AbortRequestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls ScrapeRequests with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetRequest(ctx context.Context, in *GetRequestRequest, opts ...grpc.CallOption) (*pipeline.RequestView, error) {
	out := new(pipeline.RequestView)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := c.cc.Invoke(ctx, getRequestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AbortRequest(ctx context.Context, in *AbortRequestRequest, opts ...grpc.CallOption) (*AbortRequestResponse, error) {
	out := new(AbortRequestResponse)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := c.cc.Invoke(ctx, abortRequestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
