package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

const ServiceName = "vpsscreener.fleet.v1.FleetService"

type SubmitMetricsResponse struct {
	Message string `json:"message"`
}

type QueryStatusRequest struct{}

type QueryStatusResponse struct {
	Nodes []model.StatusRecord `json:"nodes"`
}

type FetchTasksRequest struct {
	Node string `json:"node"`
}

type FetchTasksResponse struct {
	Tasks []model.Task `json:"tasks"`
}

// FleetServer is the server API for the fleet service.
type FleetServer interface {
	SubmitMetrics(context.Context, *model.IngestRequest) (*SubmitMetricsResponse, error)
	QueryStatus(context.Context, *QueryStatusRequest) (*QueryStatusResponse, error)
	FetchTasks(context.Context, *FetchTasksRequest) (*FetchTasksResponse, error)
}

func RegisterFleetServer(s grpc.ServiceRegistrar, srv FleetServer) {
	s.RegisterService(&FleetServiceDesc, srv)
}

// FleetServiceDesc is written by hand; messages travel as JSON.
var FleetServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FleetServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitMetrics", Handler: submitMetricsHandler},
		{MethodName: "QueryStatus", Handler: queryStatusHandler},
		{MethodName: "FetchTasks", Handler: fetchTasksHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vpsscreener/fleet/v1/fleet.json",
}

func submitMetricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.IngestRequest)
	if err := dec(in); err != nil {
		return nil, malformed(err)
	}
	if interceptor == nil {
		return srv.(FleetServer).SubmitMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SubmitMetrics"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServer).SubmitMetrics(ctx, req.(*model.IngestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryStatusRequest)
	if err := dec(in); err != nil {
		return nil, malformed(err)
	}
	if interceptor == nil {
		return srv.(FleetServer).QueryStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/QueryStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServer).QueryStatus(ctx, req.(*QueryStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchTasksHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FetchTasksRequest)
	if err := dec(in); err != nil {
		return nil, malformed(err)
	}
	if interceptor == nil {
		return srv.(FleetServer).FetchTasks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/FetchTasks"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServer).FetchTasks(ctx, req.(*FetchTasksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls FleetService over conn using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) SubmitMetrics(ctx context.Context, in *model.IngestRequest, opts ...grpc.CallOption) (*SubmitMetricsResponse, error) {
	out := new(SubmitMetricsResponse)
	if err := c.invoke(ctx, "SubmitMetrics", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) QueryStatus(ctx context.Context, opts ...grpc.CallOption) (*QueryStatusResponse, error) {
	out := new(QueryStatusResponse)
	if err := c.invoke(ctx, "QueryStatus", &QueryStatusRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchTasks(ctx context.Context, node string, opts ...grpc.CallOption) (*FetchTasksResponse, error) {
	out := new(FetchTasksResponse)
	if err := c.invoke(ctx, "FetchTasks", &FetchTasksRequest{Node: node}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
