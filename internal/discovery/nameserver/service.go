package nameserver

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName   = "rendezvous.v1.NameService"
	publishMethod = "/" + serviceName + "/Publish"
	resolveMethod = "/" + serviceName + "/Resolve"
	retractMethod = "/" + serviceName + "/Retract"
)

type RecordRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
}

type RecordResponse struct {
	Endpoint string `json:"endpoint,omitempty"`
}

type NameServiceServer interface {
	Publish(ctx context.Context, req *RecordRequest) (*RecordResponse, error)
	Resolve(ctx context.Context, req *RecordRequest) (*RecordResponse, error)
	Retract(ctx context.Context, req *RecordRequest) (*RecordResponse, error)
}

func RegisterNameServiceServer(s grpc.ServiceRegistrar, srv NameServiceServer) {
	s.RegisterService(&nameServiceDesc, srv)
}

type unaryCall func(srv NameServiceServer, ctx context.Context, req *RecordRequest) (*RecordResponse, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(RecordRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NameServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(NameServiceServer), ctx, req.(*RecordRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var nameServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler:    unaryHandler(publishMethod, NameServiceServer.Publish),
		},
		{
			MethodName: "Resolve",
			Handler:    unaryHandler(resolveMethod, NameServiceServer.Resolve),
		},
		{
			MethodName: "Retract",
			Handler:    unaryHandler(retractMethod, NameServiceServer.Retract),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rendezvous/v1/nameservice",
}
