package history

import (
	"context"

	"github.com/webitel/order-history/api/codec"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName                               = "history.History"
	History_AddOrderHistory_FullMethodName    = "/history.History/AddOrderHistory"
	History_CancelOrderHistory_FullMethodName = "/history.History/CancelOrderHistory"
)

// HistoryClient is the client API for the History service.
type HistoryClient interface {
	AddOrderHistory(ctx context.Context, in *AddOrderHistoryRequest, opts ...grpc.CallOption) (*AddOrderHistoryReply, error)
	CancelOrderHistory(ctx context.Context, in *CancelOrderHistoryRequest, opts ...grpc.CallOption) (*CancelOrderHistoryReply, error)
}

type historyClient struct {
	cc grpc.ClientConnInterface
}

func NewHistoryClient(cc grpc.ClientConnInterface) HistoryClient {
	return &historyClient{cc}
}

func (c *historyClient) AddOrderHistory(ctx context.Context, in *AddOrderHistoryRequest, opts ...grpc.CallOption) (*AddOrderHistoryReply, error) {
	out := new(AddOrderHistoryReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	if err := c.cc.Invoke(ctx, History_AddOrderHistory_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *historyClient) CancelOrderHistory(ctx context.Context, in *CancelOrderHistoryRequest, opts ...grpc.CallOption) (*CancelOrderHistoryReply, error) {
	out := new(CancelOrderHistoryReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
	if err := c.cc.Invoke(ctx, History_CancelOrderHistory_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HistoryServer is the server API for the History service.
type HistoryServer interface {
	AddOrderHistory(context.Context, *AddOrderHistoryRequest) (*AddOrderHistoryReply, error)
	CancelOrderHistory(context.Context, *CancelOrderHistoryRequest) (*CancelOrderHistoryReply, error)
}

// UnimplementedHistoryServer can be embedded to have forward compatible implementations.
type UnimplementedHistoryServer struct{}

func (UnimplementedHistoryServer) AddOrderHistory(context.Context, *AddOrderHistoryRequest) (*AddOrderHistoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method AddOrderHistory not implemented")
}

func (UnimplementedHistoryServer) CancelOrderHistory(context.Context, *CancelOrderHistoryRequest) (*CancelOrderHistoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrderHistory not implemented")
}

func RegisterHistoryServer(s grpc.ServiceRegistrar, srv HistoryServer) {
	s.RegisterService(&History_ServiceDesc, srv)
}

func _History_AddOrderHistory_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddOrderHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).AddOrderHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: History_AddOrderHistory_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).AddOrderHistory(ctx, req.(*AddOrderHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _History_CancelOrderHistory_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelOrderHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).CancelOrderHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: History_CancelOrderHistory_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).CancelOrderHistory(ctx, req.(*CancelOrderHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// History_ServiceDesc is the grpc.ServiceDesc for the History service.
// Messages are plain structs and travel with the "json" codec.
var History_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HistoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AddOrderHistory",
			Handler:    _History_AddOrderHistory_Handler,
		},
		{
			MethodName: "CancelOrderHistory",
			Handler:    _History_CancelOrderHistory_Handler,
		},
	},
	Streams: []grpc.StreamDesc{},
}
