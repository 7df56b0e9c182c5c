// Package landchangev1 declares the landchange.v1.ChangeDetection gRPC service.
// Messages are carried as google.protobuf.Struct so the service needs no
// generated message types; field names are documented on each method.
package landchangev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName                                 = "landchange.v1.ChangeDetection"
	ChangeDetection_DetectChange_FullMethodName = "/landchange.v1.ChangeDetection/DetectChange"
	ChangeDetection_SubmitExport_FullMethodName = "/landchange.v1.ChangeDetection/SubmitExport"
)

// ChangeDetectionClient is the client API for the ChangeDetection service.
type ChangeDetectionClient interface {
	// DetectChange runs a detection. Request fields: roi (string or list of
	// [lat, lon]), start_year, end_year, threshold (optional),
	// include_quicklooks (optional bool).
	DetectChange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	// SubmitExport runs a detection and submits its mask for export. Request
	// fields are those of DetectChange plus destination.
	SubmitExport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type changeDetectionClient struct {
	cc grpc.ClientConnInterface
}

// NewChangeDetectionClient binds a client to a connection.
func NewChangeDetectionClient(cc grpc.ClientConnInterface) ChangeDetectionClient {
	return &changeDetectionClient{cc}
}

func (c *changeDetectionClient) DetectChange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ChangeDetection_DetectChange_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *changeDetectionClient) SubmitExport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ChangeDetection_SubmitExport_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeDetectionServer is the server API for the ChangeDetection service.
type ChangeDetectionServer interface {
	DetectChange(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitExport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	mustEmbedUnimplementedChangeDetectionServer()
}

// UnimplementedChangeDetectionServer must be embedded for forward compatibility.
type UnimplementedChangeDetectionServer struct{}

func (UnimplementedChangeDetectionServer) DetectChange(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method DetectChange not implemented")
}

func (UnimplementedChangeDetectionServer) SubmitExport(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitExport not implemented")
}

func (UnimplementedChangeDetectionServer) mustEmbedUnimplementedChangeDetectionServer() {}

// RegisterChangeDetectionServer registers srv on s.
func RegisterChangeDetectionServer(s grpc.ServiceRegistrar, srv ChangeDetectionServer) {
	s.RegisterService(&ChangeDetection_ServiceDesc, srv)
}

func _ChangeDetection_DetectChange_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChangeDetectionServer).DetectChange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChangeDetection_DetectChange_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChangeDetectionServer).DetectChange(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChangeDetection_SubmitExport_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChangeDetectionServer).SubmitExport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ChangeDetection_SubmitExport_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChangeDetectionServer).SubmitExport(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ChangeDetection_ServiceDesc is the grpc.ServiceDesc for the ChangeDetection service.
var ChangeDetection_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChangeDetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DetectChange",
			Handler:    _ChangeDetection_DetectChange_Handler,
		},
		{
			MethodName: "SubmitExport",
			Handler:    _ChangeDetection_SubmitExport_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "landchange/v1/landchange.proto",
}
