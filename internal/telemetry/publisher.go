package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lanepilot/internal/pipeline"
)

// Config holds configuration for the telemetry gRPC server.
type Config struct {
	// ListenAddr is the address Start listens on.
	ListenAddr string
	// MaxClients bounds concurrent watchers.
	MaxClients int
	// ClientBuffer is the per-watcher queue length. A watcher that falls
	// this far behind loses records.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "127.0.0.1:50061",
		MaxClients:   5,
		ClientBuffer: 32,
	}
}

type client struct {
	id             uint64
	includeSkipped bool
	ch             chan *structpb.Struct
}

// Publisher fans pipeline records out to streaming watchers. It implements
// pipeline.Sink and TelemetryServer.
type Publisher struct {
	config Config
	server *grpc.Server

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	running   atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPublisher creates a Publisher. Zero config fields take their defaults.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		clients: make(map[uint64]*client),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves the Telemetry service on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.server = grpc.NewServer()
	RegisterTelemetryServer(p.server, p)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		diagf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			opsf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.server.GracefulStop()
	p.wg.Wait()
	diagf("gRPC server stopped")
}

// Record publishes one record to every watcher without blocking. Watchers
// whose queue is full miss it.
func (p *Publisher) Record(_ context.Context, r pipeline.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.clients) == 0 {
		return nil
	}

	msg, err := EncodeRecord(r)
	if err != nil {
		return err
	}
	p.published.Add(1)
	for _, c := range p.clients {
		if r.Skipped && !c.includeSkipped {
			continue
		}
		select {
		case c.ch <- msg:
		default:
			if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
				opsf("watcher %d is slow, dropped record %d (total dropped: %d)", c.id, r.Seq, n)
			}
		}
	}
	return nil
}

// StreamDecisions streams records to one watcher until it disconnects or
// the publisher stops.
func (p *Publisher) StreamDecisions(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	c, err := p.addClient(req)
	if err != nil {
		return err
	}
	defer p.removeClient(c.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopCh:
			return nil
		case msg := <-c.ch:
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (p *Publisher) addClient(req *structpb.Struct) (*client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "at most %d watchers", p.config.MaxClients)
	}
	p.nextID++
	c := &client{
		id:             p.nextID,
		includeSkipped: req.GetFields()[OptIncludeSkipped].GetBoolValue(),
		ch:             make(chan *structpb.Struct, p.config.ClientBuffer),
	}
	p.clients[c.id] = c
	diagf("watcher %d connected (total: %d)", c.id, len(p.clients))
	return c, nil
}

func (p *Publisher) removeClient(id uint64) {
	p.mu.Lock()
	delete(p.clients, id)
	n := len(p.clients)
	p.mu.Unlock()
	diagf("watcher %d disconnected (remaining: %d)", id, n)
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int    `json:"clients"`
	Running   bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	n := len(p.clients)
	p.mu.RUnlock()
	return PublisherStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   n,
		Running:   p.running.Load(),
	}
}
