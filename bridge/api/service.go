package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/bridge/port"
	"github.com/yanet-platform/yabridge/bridge/relay"
)

const (
	// DefaultDumpEntries is the page size used when none is requested.
	DefaultDumpEntries = 1024
	// MaxDumpEntries caps the page size.
	MaxDumpEntries = 65536
)

// FDBServer is the management service of the forwarding database.
type FDBServer interface {
	Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error)
	Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error)
	Observe(ctx context.Context, req *ObserveRequest) (*ObserveResponse, error)
	Flush(ctx context.Context, req *FlushRequest) (*FlushResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) (*Empty, error)
	SetStatic(ctx context.Context, req *SetStaticRequest) (*Empty, error)
	SetTopologyChange(ctx context.Context, req *TopologyChangeRequest) (*TopologyChangeResponse, error)
	Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error)
}

// FDBService implements FDBServer.
type FDBService struct {
	table      *fdb.FDB
	timers     *fdb.BridgeTimers
	registry   *port.Registry
	classifier *relay.Classifier
	log        *zap.SugaredLogger
}

// NewFDBService creates a new management service.
func NewFDBService(
	table *fdb.FDB,
	timers *fdb.BridgeTimers,
	registry *port.Registry,
	classifier *relay.Classifier,
	log *zap.SugaredLogger,
) *FDBService {
	return &FDBService{
		table:      table,
		timers:     timers,
		registry:   registry,
		classifier: classifier,
		log:        log,
	}
}

func (m *FDBService) portName(id fdb.PortID) string {
	if p, ok := m.registry.Get(id); ok {
		return p.Name
	}
	return ""
}

func (m *FDBService) Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error) {
	if req.MaxEntries < 0 || req.Skip < 0 {
		return nil, status.Error(codes.InvalidArgument, "max_entries and skip must not be negative")
	}

	maxEntries := req.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultDumpEntries
	}
	maxEntries = min(maxEntries, MaxDumpEntries)

	ageUnit := req.AgeUnit
	if ageUnit <= 0 {
		ageUnit = time.Second
	}

	records := m.table.Snapshot(maxEntries, req.Skip)

	resp := &DumpResponse{
		Records: make([]DumpRecord, 0, len(records)),
		More:    len(records) == maxEntries,
	}
	for _, record := range records {
		resp.Records = append(resp.Records, DumpRecord{
			Addr:     record.Addr,
			Port:     record.Port,
			PortName: m.portName(record.Port),
			IsLocal:  record.IsLocal,
			IsStatic: record.IsStatic,
			Age:      record.AgeIn(ageUnit),
		})
	}

	return resp, nil
}

func (m *FDBService) Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	record, ok := m.table.Get(req.Addr)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "address %s is not known", req.Addr)
	}

	return &LookupResponse{
		Port:     record.Port,
		PortName: m.portName(record.Port),
		IsLocal:  record.IsLocal,
		IsStatic: record.IsStatic,
		Age:      record.Age,
	}, nil
}

func (m *FDBService) Observe(ctx context.Context, req *ObserveRequest) (*ObserveResponse, error) {
	if !m.registry.Attached(req.Port) {
		return nil, status.Errorf(codes.NotFound, "port %d is not attached", req.Port)
	}

	decision, err := m.classifier.Classify(req.Port, req.Frame)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to classify frame: %v", err)
	}

	return &ObserveResponse{
		Verdict: decision.Verdict.String(),
		Port:    decision.Port,
		Src:     decision.Src,
		Dst:     decision.Dst,
	}, nil
}

func (m *FDBService) Flush(ctx context.Context, req *FlushRequest) (*FlushResponse, error) {
	var deleted int
	if req.Port == fdb.NoPort {
		deleted = m.table.Flush()
	} else {
		deleted = m.table.FlushPort(req.Port)
	}

	m.log.Infow("flushed forwarding entries",
		zap.Uint16("port", uint16(req.Port)),
		zap.Int("deleted", deleted),
	)

	return &FlushResponse{Deleted: deleted}, nil
}

func (m *FDBService) Delete(ctx context.Context, req *DeleteRequest) (*Empty, error) {
	if err := m.table.Delete(req.Addr); err != nil {
		return nil, statusError(err)
	}

	return &Empty{}, nil
}

func (m *FDBService) SetStatic(ctx context.Context, req *SetStaticRequest) (*Empty, error) {
	if err := m.table.SetStatic(req.Addr, req.Static); err != nil {
		return nil, statusError(err)
	}

	return &Empty{}, nil
}

func (m *FDBService) SetTopologyChange(ctx context.Context, req *TopologyChangeRequest) (*TopologyChangeResponse, error) {
	m.timers.SetTopologyChange(req.Active)
	m.log.Infow("topology change state updated", zap.Bool("active", req.Active))

	return &TopologyChangeResponse{HoldTime: m.table.HoldTime()}, nil
}

func (m *FDBService) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	return &StatsResponse{
		Entries:        m.table.Len(),
		Buckets:        m.table.Buckets(),
		HoldTime:       m.table.HoldTime(),
		TopologyChange: m.timers.TopologyChange(),
		Counters:       m.table.Stats(),
		Ports:          m.registry.List(),
	}, nil
}

// statusError maps forwarding database errors to gRPC status codes.
func statusError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, fdb.ErrInvalidAddress):
		code = codes.InvalidArgument
	case errors.Is(err, fdb.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, fdb.ErrLocalEntry):
		code = codes.FailedPrecondition
	case errors.Is(err, fdb.ErrOutOfMemory):
		code = codes.ResourceExhausted
	}

	return status.Error(code, err.Error())
}

////////////////////////////////////////////////////////////////////////////////

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "yabridge.FDBService"

// ServiceDesc describes FDBService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FDBServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Dump", FDBServer.Dump),
		unaryMethod("Lookup", FDBServer.Lookup),
		unaryMethod("Observe", FDBServer.Observe),
		unaryMethod("Flush", FDBServer.Flush),
		unaryMethod("Delete", FDBServer.Delete),
		unaryMethod("SetStatic", FDBServer.SetStatic),
		unaryMethod("SetTopologyChange", FDBServer.SetTopologyChange),
		unaryMethod("Stats", FDBServer.Stats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "yabridge/fdb",
}

// RegisterFDBServer registers the service on the given server.
func RegisterFDBServer(s grpc.ServiceRegistrar, srv FDBServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, method)
}

func unaryMethod[Req any, Resp any](
	method string,
	fn func(FDBServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(FDBServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(FDBServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
