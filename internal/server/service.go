package server

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified admin service name.
const ServiceName = "hanabi.admin.v1.Admin"

// AdminServer is the admin service implementation.
type AdminServer interface {
	GetServerState(context.Context, *GetServerStateRequest) (*GetServerStateResponse, error)
	ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error)
	GetTable(context.Context, *GetTableRequest) (*GetTableResponse, error)
	TerminateTable(context.Context, *TerminateTableRequest) (*TerminateTableResponse, error)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetServerState", Handler: unaryHandler("GetServerState", AdminServer.GetServerState)},
		{MethodName: "ListUsers", Handler: unaryHandler("ListUsers", AdminServer.ListUsers)},
		{MethodName: "GetTable", Handler: unaryHandler("GetTable", AdminServer.GetTable)},
		{MethodName: "TerminateTable", Handler: unaryHandler("TerminateTable", AdminServer.TerminateTable)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hanabi/admin/v1/admin.proto",
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(AdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdminClient calls the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient creates a client on cc.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *AdminClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) GetServerState(ctx context.Context, in *GetServerStateRequest, opts ...grpc.CallOption) (*GetServerStateResponse, error) {
	return invoke[GetServerStateResponse](ctx, c, "GetServerState", in, opts)
}

func (c *AdminClient) ListUsers(ctx context.Context, in *ListUsersRequest, opts ...grpc.CallOption) (*ListUsersResponse, error) {
	return invoke[ListUsersResponse](ctx, c, "ListUsers", in, opts)
}

func (c *AdminClient) GetTable(ctx context.Context, in *GetTableRequest, opts ...grpc.CallOption) (*GetTableResponse, error) {
	return invoke[GetTableResponse](ctx, c, "GetTable", in, opts)
}

func (c *AdminClient) TerminateTable(ctx context.Context, in *TerminateTableRequest, opts ...grpc.CallOption) (*TerminateTableResponse, error) {
	return invoke[TerminateTableResponse](ctx, c, "TerminateTable", in, opts)
}
