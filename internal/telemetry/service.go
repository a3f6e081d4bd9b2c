// Package telemetry streams pipeline records to remote watchers over gRPC.
//
// The service is declared by hand and carries google.protobuf.Struct
// messages, so watchers need no generated code beyond the well-known types.
// A record's JSON field names are the Struct's keys.
package telemetry

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName          = "lanepilot.telemetry.v1.Telemetry"
	streamDecisionsName  = "StreamDecisions"
	StreamDecisionsRoute = "/" + ServiceName + "/" + streamDecisionsName
)

// Request keys understood by StreamDecisions.
const (
	// OptIncludeSkipped asks for records of frames the detection cadence
	// skipped. They are filtered out by default.
	OptIncludeSkipped = "include_skipped"
)

// TelemetryServer is the server API for the Telemetry service.
type TelemetryServer interface {
	StreamDecisions(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func streamDecisionsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TelemetryServer).StreamDecisions(req, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the Telemetry service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamDecisionsName,
			Handler:       streamDecisionsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "lanepilot/telemetry/v1/telemetry.proto",
}

// RegisterTelemetryServer registers srv on s.
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
