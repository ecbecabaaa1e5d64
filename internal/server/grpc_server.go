package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/control"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "co2sim.v1.WellSearchService"

// WellSearchServer is the gRPC surface of the search controller. Messages
// are google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type WellSearchServer interface {
	ToggleSearch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSnapshots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunSingleSimulation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchSnapshots(*structpb.Struct, grpc.ServerStream) error
}

// WellSearchServiceDesc describes the service for grpc.Server.RegisterService
var WellSearchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WellSearchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ToggleSearch", Handler: unaryHandler("ToggleSearch", WellSearchServer.ToggleSearch)},
		{MethodName: "GetSnapshots", Handler: unaryHandler("GetSnapshots", WellSearchServer.GetSnapshots)},
		{MethodName: "RunSingleSimulation", Handler: unaryHandler("RunSingleSimulation", WellSearchServer.RunSingleSimulation)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSnapshots", Handler: watchSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "co2sim/v1/well_search.proto",
}

type unaryMethod func(WellSearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(WellSearchServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(WellSearchServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WellSearchServer).WatchSnapshots(in, stream)
}

// RegisterWellSearchServer registers srv on s
func RegisterWellSearchServer(s grpc.ServiceRegistrar, srv WellSearchServer) {
	s.RegisterService(&WellSearchServiceDesc, srv)
}

// GRPCServer implements WellSearchServer on top of a Controller
type GRPCServer struct {
	controller     *control.Controller
	streamInterval time.Duration
}

// NewGRPCServer creates the gRPC service
func NewGRPCServer(controller *control.Controller, streamInterval time.Duration) *GRPCServer {
	if streamInterval <= 0 {
		streamInterval = DefaultStreamInterval
	}
	return &GRPCServer{controller: controller, streamInterval: streamInterval}
}

// kindRequest is the body of ToggleSearch, GetSnapshots and WatchSnapshots
type kindRequest struct {
	Kind string `json:"kind"`
}

func (s *GRPCServer) ToggleSearch(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, err := parseKindRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := s.controller.Toggle(kind)
	if err != nil {
		if errors.Is(err, control.ErrPreviousRunDraining) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	logger.Info("search toggled (gRPC)", "kind", kind, "running", res.Running, "run_id", res.RunID)
	return toStruct(res)
}

func (s *GRPCServer) GetSnapshots(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, err := parseKindRequest(req)
	if err != nil {
		return nil, err
	}
	pub, err := s.controller.Publisher(kind)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return toStruct(map[string]any{
		"kind": kind,
		"path": pub.Path(),
		"mass": pub.Mass(),
	})
}

func (s *GRPCServer) RunSingleSimulation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in simulationRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.Location == nil {
		return nil, status.Error(codes.InvalidArgument, "location is required")
	}
	res, chart, err := s.controller.RunSingleSimulation(ctx, *in.Location, in.Parameters)
	if err != nil {
		switch {
		case errors.Is(err, simclient.ErrInvalidLocation):
			return nil, status.Error(codes.OutOfRange, err.Error())
		case errors.Is(err, simclient.ErrSimulationEngine):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return toStruct(map[string]any{"result": res, "chart": chart})
}

func (s *GRPCServer) WatchSnapshots(req *structpb.Struct, stream grpc.ServerStream) error {
	kind, err := parseKindRequest(req)
	if err != nil {
		return err
	}
	pub, err := s.controller.Publisher(kind)
	if err != nil {
		return status.Error(codes.NotFound, err.Error())
	}
	err = watchSnapshots(stream.Context(), kind, pub, s.streamInterval, func(msg StreamMessage) error {
		out, err := toStruct(msg)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return err
}

func parseKindRequest(req *structpb.Struct) (control.Kind, error) {
	var in kindRequest
	if err := fromStruct(req, &in); err != nil {
		return "", err
	}
	kind, err := control.ParseKind(in.Kind)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	return kind, nil
}

// toStruct converts a JSON-serializable value to a Struct message
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// fromStruct decodes a Struct message into v through its JSON form
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("decode request: %v", err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("decode request: %v", err))
	}
	return nil
}

// WellSearchClient is a thin client of the service
type WellSearchClient struct {
	cc grpc.ClientConnInterface
}

// NewWellSearchClient wraps a client connection
func NewWellSearchClient(cc grpc.ClientConnInterface) *WellSearchClient {
	return &WellSearchClient{cc: cc}
}

func (c *WellSearchClient) invoke(ctx context.Context, method string, req any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleSearch toggles the given kind
func (c *WellSearchClient) ToggleSearch(ctx context.Context, kind control.Kind, opts ...grpc.CallOption) (control.ToggleResult, error) {
	var res control.ToggleResult
	out, err := c.invoke(ctx, "ToggleSearch", kindRequest{Kind: string(kind)}, opts...)
	if err != nil {
		return res, err
	}
	return res, fromStruct(out, &res)
}

// GetSnapshots returns the raw snapshot message of kind
func (c *WellSearchClient) GetSnapshots(ctx context.Context, kind control.Kind, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSnapshots", kindRequest{Kind: string(kind)}, opts...)
}

// RunSingleSimulation simulates loc with the server's parameters, or params when set
func (c *WellSearchClient) RunSingleSimulation(ctx context.Context, loc models.Location, params *models.SimulationParameters, opts ...grpc.CallOption) (*models.SimulationResult, *models.MassChart, error) {
	out, err := c.invoke(ctx, "RunSingleSimulation", simulationRequest{Location: &loc, Parameters: params}, opts...)
	if err != nil {
		return nil, nil, err
	}
	var resp struct {
		Result *models.SimulationResult `json:"result"`
		Chart  *models.MassChart        `json:"chart"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Result, resp.Chart, nil
}

// WatchSnapshots opens the snapshot stream of kind
func (c *WellSearchClient) WatchSnapshots(ctx context.Context, kind control.Kind, opts ...grpc.CallOption) (*SnapshotStream, error) {
	stream, err := c.cc.NewStream(ctx, &WellSearchServiceDesc.Streams[0], "/"+ServiceName+"/WatchSnapshots", opts...)
	if err != nil {
		return nil, err
	}
	in, err := toStruct(kindRequest{Kind: string(kind)})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotStream{stream: stream}, nil
}

// SnapshotStream receives pushed snapshot changes
type SnapshotStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next change
func (s *SnapshotStream) Recv() (StreamMessage, error) {
	var msg StreamMessage
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return msg, err
	}
	return msg, fromStruct(out, &msg)
}
