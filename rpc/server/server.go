package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/lib/store/dstore"
	"github.com/ValentinKolb/dMeta/lib/store/lstore"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("rpc")

// RPCServer serves the store of one shard over a transport. Requests for the
// key value and membership operations are handled by the meta store adapter,
// catalog requests by the catalog adapter.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	sup      *shutdown.Supervisor
	store    store.IMetaStore
	nodeHost *dragonboat.NodeHost
	metaKV   IRPCServerAdapter
	catalog  IRPCServerAdapter

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		metaKV:     NewMetaStoreServerAdapter(),
		catalog:    NewCatalogServerAdapter(),
		stop:       make(chan struct{}),
	}
}

// Serve initializes the store and serves requests until the process receives
// SIGINT or SIGTERM, Stop is called, the transport fails or the storage becomes
// unsafe. In the last case the ShutdownError of the supervisor is returned.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	defer s.close()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.transport.Listen(s.config)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("transport failed: %w", err)
		}
		return s.sup.Err()
	case <-s.sup.Done():
		log.Errorf("Storage became unsafe, shutting down: %v", s.sup.Err())
	case sig := <-signals:
		log.Infof("Received %s, shutting down", sig)
	case <-s.stop:
		log.Infof("Stopping server")
	}

	if err := s.transport.Close(); err != nil {
		log.Warningf("Failed to close transport: %v", err)
	}
	if err := <-listenErr; err != nil {
		log.Warningf("Transport returned: %v", err)
	}
	return s.sup.Err()
}

// Stop makes Serve return.
func (s *RPCServer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// --------------------------------------------------------------------------
// Setup
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return metaerr.InvalidConfig(err.Error())
	}
	log.Infof(s.config.String())

	s.sup = shutdown.NewSupervisor(s.config.IntegrityErrorThreshold)

	switch s.config.Mode {
	case common.ModeLocal:
		st, err := storage.Create(s.config.LocalStorePath(), s.config.ReplicaID)
		if err != nil {
			return err
		}
		s.store, err = lstore.NewLocalStore(st, s.sup, lstore.Config{
			NodeID:            s.config.ReplicaID,
			Address:           s.config.Transport.Endpoint,
			CheckpointEntries: s.config.CheckpointEntries,
		})
		if err != nil {
			return err
		}
		log.Infof("created local store for shard %d", s.config.ShardID)

	case common.ModeReplicated:
		nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		factory := dstore.CreateStateMachineFactory(s.config.DataDir, s.sup)
		if err := nh.StartOnDiskReplica(s.config.InitialMembers(), s.config.Join, factory, s.config.ToDragonboatConfig()); err != nil {
			nh.Close()
			return fmt.Errorf("failed to start shard %d: %w", s.config.ShardID, err)
		}
		s.nodeHost = nh
		s.store = dstore.NewDistributedStore(nh, s.config.ShardID, s.config.ReplicaID, s.config.Timeout(), s.sup)
		log.Infof("started replica %d of shard %d", s.config.ReplicaID, s.config.ShardID)
	}

	s.transport.RegisterHandler(s.handle)
	log.Infof("dMeta setup completed successfully")
	return nil
}

// close releases the store and the NodeHost
func (s *RPCServer) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warningf("Failed to close store: %v", err)
		}
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

// handle is the transport.ServerHandleFunc of the server
func (s *RPCServer) handle(ctx context.Context, shardId uint64, req []byte) []byte {
	resp := s.dispatch(ctx, shardId, req)

	// a record that can not be decoded hints at damaged storage
	if resp.Err != nil && resp.Err.Kind == metaerr.KindSerdeJSON {
		s.sup.Observe(resp.Err)
	}

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		log.Errorf("Failed to serialize %s response: %v", resp.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			metaerr.Unknownf("failed to serialize response: %v", err),
		))
	}
	return val
}

func (s *RPCServer) dispatch(ctx context.Context, shardId uint64, req []byte) *common.Message {
	if shardId != s.config.ShardID {
		return common.NewErrorResponse(metaerr.InvalidConfig(
			fmt.Sprintf("shard %d is not served by this node (serving shard %d)", shardId, s.config.ShardID),
		))
	}

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return common.NewErrorResponse(metaerr.BadBytes(fmt.Sprintf("failed to deserialize request: %v", err)))
	}

	if timeout := s.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if msg.MsgType.IsCatalog() {
		return s.catalog.Handle(ctx, &msg, s.store)
	}
	return s.metaKV.Handle(ctx, &msg, s.store)
}
