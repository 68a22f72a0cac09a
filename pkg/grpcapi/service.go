// Package grpcapi serves shell sessions over gRPC so a switch can be
// operated from another host with "swsh connect".
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the full gRPC service name.
const ServiceName = "swsh.Shell"

// ShellServer is the server API of the swsh.Shell service. Every message is
// a structpb.Struct.
//
//	Open      {mode, batch}            -> {session, prompt}
//	Execute   {session, line}          -> {output, error, result, prompt, ended, terminal-length}
//	Complete  {session, line, cursor}  -> {partial, candidates: [{text, help, kind}]}
//	Close     {session}                -> {}
type ShellServer interface {
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Complete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ShellServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, m unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(ShellServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return m(srv.(ShellServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ShellServiceDesc describes swsh.Shell for grpc.Server.RegisterService.
var ShellServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShellServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: handler("Open", ShellServer.Open)},
		{MethodName: "Execute", Handler: handler("Execute", ShellServer.Execute)},
		{MethodName: "Complete", Handler: handler("Complete", ShellServer.Complete)},
		{MethodName: "Close", Handler: handler("Close", ShellServer.Close)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swsh/shell",
}

// RegisterShellServer registers srv on s.
func RegisterShellServer(s grpc.ServiceRegistrar, srv ShellServer) {
	s.RegisterService(&ShellServiceDesc, srv)
}

func str(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

func num(st *structpb.Struct, key string) int {
	return int(st.GetFields()[key].GetNumberValue())
}

func flag(st *structpb.Struct, key string) bool {
	return st.GetFields()[key].GetBoolValue()
}
