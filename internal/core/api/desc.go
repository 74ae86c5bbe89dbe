package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "boorukeeper.board.v1.BoardService"

// Method names. Every method takes and returns a google.protobuf.Struct.
const (
	MethodGetPosts   = "GetPosts"
	MethodGetPools   = "GetPools"
	MethodSearchTags = "SearchTags"
	MethodGetUser    = "GetUser"
	MethodFindTag    = "FindTag"
)

// BoardServer is the server side of the board service.
type BoardServer interface {
	GetPosts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPools(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchTags(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindTag(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type boardMethod func(BoardServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call boardMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BoardServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BoardServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// BoardServiceDesc describes the board service for grpc.Server.RegisterService.
// Written by hand; the messages are well-known Struct types so no
// generated code is needed.
var BoardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BoardServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodGetPosts, BoardServer.GetPosts),
		unaryMethod(MethodGetPools, BoardServer.GetPools),
		unaryMethod(MethodSearchTags, BoardServer.SearchTags),
		unaryMethod(MethodGetUser, BoardServer.GetUser),
		unaryMethod(MethodFindTag, BoardServer.FindTag),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "boorukeeper/board/v1/board.proto",
}

// RegisterBoardServer registers srv on s.
func RegisterBoardServer(s grpc.ServiceRegistrar, srv BoardServer) {
	s.RegisterService(&BoardServiceDesc, srv)
}

// BoardClient calls the board service.
type BoardClient struct {
	cc grpc.ClientConnInterface
}

// NewBoardClient wraps a client connection.
func NewBoardClient(cc grpc.ClientConnInterface) *BoardClient {
	return &BoardClient{cc: cc}
}

// Call invokes method with req.
func (c *BoardClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
