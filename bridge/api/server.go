package api

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Config is the management API configuration.
type Config struct {
	// Endpoint is a TCP address or, if it starts with "/", a UNIX socket
	// path.
	Endpoint string `yaml:"endpoint"`
	// MaxMessageSize limits the size of requests and responses.
	MaxMessageSize datasize.ByteSize `yaml:"max_message_size"`
}

// DefaultConfig returns the default management API configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:       "[::1]:50090",
		MaxMessageSize: 4 * datasize.MB,
	}
}

// Server exposes the management API.
type Server struct {
	cfg    *Config
	server *grpc.Server
	log    *zap.SugaredLogger
}

// NewServer creates a new management API server for the given service.
func NewServer(cfg *Config, service FDBServer, log *zap.SugaredLogger) *Server {
	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(cfg.MaxMessageSize.Bytes())),
		grpc.MaxSendMsgSize(int(cfg.MaxMessageSize.Bytes())),
	)
	RegisterFDBServer(server, service)

	return &Server{
		cfg:    cfg,
		server: server,
		log:    log,
	}
}

// Run serves the API until the specified context is canceled.
func (m *Server) Run(ctx context.Context) error {
	listener, err := m.listen()
	if err != nil {
		return fmt.Errorf("failed to initialize gRPC listener: %w", err)
	}

	return m.Serve(ctx, listener)
}

// Serve serves the API on the given listener until the specified context
// is canceled.
func (m *Server) Serve(ctx context.Context, listener net.Listener) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		m.log.Infow("exposing gRPC API", zap.Stringer("addr", listener.Addr()))
		return m.server.Serve(listener)
	})

	<-ctx.Done()

	m.log.Infow("stopping gRPC API", zap.Stringer("addr", listener.Addr()))
	defer m.log.Infow("stopped gRPC API", zap.Stringer("addr", listener.Addr()))

	m.server.GracefulStop()

	return wg.Wait()
}

func (m *Server) listen() (net.Listener, error) {
	endpoint := m.cfg.Endpoint

	if strings.HasPrefix(endpoint, "/") {
		dir := path.Dir(endpoint)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		if err := os.Remove(endpoint); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}

		return net.Listen("unix", endpoint)
	}

	return net.Listen("tcp", endpoint)
}
