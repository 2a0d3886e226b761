package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a management API client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client of the API exposed at the given endpoint.
func Dial(endpoint string, maxMessageSize datasize.ByteSize, options ...grpc.DialOption) (*Client, error) {
	target := endpoint
	if strings.HasPrefix(endpoint, "/") {
		target = "unix://" + endpoint
	}

	options = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(int(maxMessageSize.Bytes())),
		),
	}, options...)

	conn, err := grpc.NewClient(target, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gRPC client: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (m *Client) Close() error {
	return m.conn.Close()
}

func invoke[Req any, Resp any](ctx context.Context, conn *grpc.ClientConn, method string, req *Req) (*Resp, error) {
	resp := new(Resp)
	if err := conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (m *Client) Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error) {
	return invoke[DumpRequest, DumpResponse](ctx, m.conn, "Dump", req)
}

// DumpAll pages through the whole forwarding database.
func (m *Client) DumpAll(ctx context.Context, req *DumpRequest) ([]DumpRecord, error) {
	page := *req
	records := []DumpRecord{}
	for {
		resp, err := m.Dump(ctx, &page)
		if err != nil {
			return nil, err
		}

		records = append(records, resp.Records...)
		if !resp.More || len(resp.Records) == 0 {
			return records, nil
		}
		page.Skip += len(resp.Records)
	}
}

func (m *Client) Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	return invoke[LookupRequest, LookupResponse](ctx, m.conn, "Lookup", req)
}

func (m *Client) Observe(ctx context.Context, req *ObserveRequest) (*ObserveResponse, error) {
	return invoke[ObserveRequest, ObserveResponse](ctx, m.conn, "Observe", req)
}

func (m *Client) Flush(ctx context.Context, req *FlushRequest) (*FlushResponse, error) {
	return invoke[FlushRequest, FlushResponse](ctx, m.conn, "Flush", req)
}

func (m *Client) Delete(ctx context.Context, req *DeleteRequest) (*Empty, error) {
	return invoke[DeleteRequest, Empty](ctx, m.conn, "Delete", req)
}

func (m *Client) SetStatic(ctx context.Context, req *SetStaticRequest) (*Empty, error) {
	return invoke[SetStaticRequest, Empty](ctx, m.conn, "SetStatic", req)
}

func (m *Client) SetTopologyChange(ctx context.Context, req *TopologyChangeRequest) (*TopologyChangeResponse, error) {
	return invoke[TopologyChangeRequest, TopologyChangeResponse](ctx, m.conn, "SetTopologyChange", req)
}

func (m *Client) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	return invoke[StatsRequest, StatsResponse](ctx, m.conn, "Stats", req)
}
