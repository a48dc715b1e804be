package gateway

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"lsgw/internal/backends"
	"lsgw/internal/backends/lsp"
	"lsgw/internal/errors"
	"lsgw/internal/metrics"
	"lsgw/internal/paths"
	"lsgw/internal/protocol"
	"lsgw/internal/slogutil"
)

// HandshakeTimeout bounds the initialize request.
const HandshakeTimeout = 30 * time.Second

// MessageRequestTimeout bounds how long a backend waits for the caller to
// answer window/showMessageRequest.
const MessageRequestTimeout = 60 * time.Second

// State is how far a backend got through its lifecycle.
type State string

const (
	StateUnconfigured  State = "unconfigured"
	StateStreamsReady  State = "streams-ready"
	StateInstanceReady State = "instance-ready"
	StateInitialized   State = "initialized"
)

// Options tune an Initializer. Zero values use the package defaults.
type Options struct {
	HandshakeTimeout      time.Duration
	MessageRequestTimeout time.Duration
	ClientName            string
	ClientVersion         string
}

// Initializer drives backends from known to initialized. Every step is
// idempotent and runs under the backend's lock, so concurrent callers for
// one id construct and handshake it once.
type Initializer struct {
	reg      *backends.Registries
	resolver *backends.Resolver
	exec     *backends.Executor
	paths    *paths.Transformer
	events   *Events
	logger   *slog.Logger
	opts     Options
}

// NewInitializer wires an initializer over the registries.
func NewInitializer(reg *backends.Registries, exec *backends.Executor, transformer *paths.Transformer, events *Events, logger *slog.Logger, opts Options) *Initializer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = HandshakeTimeout
	}
	if opts.MessageRequestTimeout <= 0 {
		opts.MessageRequestTimeout = MessageRequestTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "lsgw"
	}
	return &Initializer{
		reg:      reg,
		resolver: backends.NewResolver(reg),
		exec:     exec,
		paths:    transformer,
		events:   events,
		logger:   logger,
		opts:     opts,
	}
}

// Initialize brings up every backend matching path and returns the merged
// capabilities of those that reached the initialized state, folded in
// backend id order. Individual failures are logged and dropped; the call
// fails only when no backend survived.
func (i *Initializer) Initialize(ctx context.Context, wsPath string) (*protocol.ServerCapabilities, error) {
	ids := i.resolver.ByPath(wsPath)
	caps := make([]*protocol.ServerCapabilities, len(ids))

	var g errgroup.Group
	for idx, id := range ids {
		g.Go(func() error {
			if err := i.exec.Acquire(ctx); err != nil {
				return nil
			}
			defer i.exec.Release()

			c, err := i.ensure(ctx, id)
			if err != nil {
				slogutil.ForBackend(i.logger, id).Warn("Backend failed to initialize", "path", wsPath, "error", err.Error())
				return nil
			}
			caps[idx] = c
			return nil
		})
	}
	_ = g.Wait()

	survived := make([]*protocol.ServerCapabilities, 0, len(caps))
	for _, c := range caps {
		if c != nil {
			survived = append(survived, c)
		}
	}
	if len(survived) == 0 {
		return nil, errors.New(errors.NoBackendAvailable, "no language server available for "+wsPath, nil).
			WithDetails(map[string]interface{}{"path": wsPath, "candidates": ids})
	}
	return protocol.ReduceCapabilities(survived), nil
}

func (i *Initializer) ensure(ctx context.Context, id string) (*protocol.ServerCapabilities, error) {
	if err := i.EnsureStreams(ctx, id); err != nil {
		return nil, err
	}
	if err := i.EnsureInstance(ctx, id); err != nil {
		return nil, err
	}
	if err := i.EnsureInitialized(ctx, id); err != nil {
		return nil, err
	}
	return i.reg.Capabilities.Get(id)
}

// EnsureStreams opens the backend's streams unless they already exist.
func (i *Initializer) EnsureStreams(ctx context.Context, id string) error {
	if i.reg.Streams.Contains(id) {
		return nil
	}
	d, err := i.descriptor(id)
	if err != nil {
		return err
	}
	return i.reg.Locks.With(id, func() error {
		if i.reg.Streams.Contains(id) {
			return nil
		}
		if err := d.Communication.IsAlive(ctx); err != nil {
			return errors.ForBackend(errors.CommunicationError, id, "backend is not reachable", err)
		}
		streams, err := d.Communication.Open(ctx)
		if err != nil {
			return errors.ForBackend(errors.CommunicationError, id, "failed to open backend streams", err)
		}
		i.reg.Streams.Add(id, streams)
		slogutil.ForBackend(i.logger, id).Debug("Streams opened", "kind", d.Communication.Kind(), "pid", streams.PID)
		return nil
	})
}

// EnsureInstance constructs the backend handle over its streams unless it
// already exists.
func (i *Initializer) EnsureInstance(_ context.Context, id string) error {
	if i.reg.Instances.Contains(id) {
		return nil
	}
	d, err := i.descriptor(id)
	if err != nil {
		return err
	}
	return i.reg.Locks.With(id, func() error {
		if i.reg.Instances.Contains(id) {
			return nil
		}
		streams, ok := i.reg.Streams.GetOrNil(id)
		if !ok {
			return errors.ForBackend(errors.CommunicationError, id, "streams are not open", nil)
		}

		logger := slogutil.ForBackend(i.logger, id)
		cb := &backendCallback{
			id:             id,
			events:         i.events,
			paths:          i.paths,
			logger:         logger,
			requestTimeout: i.opts.MessageRequestTimeout,
		}
		construct := d.Constructor
		if construct == nil {
			construct = lsp.NewClient
		}
		inst, err := construct(id, streams, cb, logger)
		if err != nil {
			return errors.ForBackend(errors.InitializationError, id, "failed to construct backend client", err)
		}
		i.reg.Instances.Add(id, inst)
		return nil
	})
}

// EnsureInitialized runs the initialize handshake unless the backend's
// capabilities are already known. A failed handshake leaves the backend
// eligible for a later attempt.
func (i *Initializer) EnsureInitialized(ctx context.Context, id string) error {
	if i.reg.Capabilities.Contains(id) {
		return nil
	}
	d, err := i.descriptor(id)
	if err != nil {
		return err
	}
	return i.reg.Locks.With(id, func() error {
		if i.reg.Capabilities.Contains(id) {
			return nil
		}
		inst, ok := i.reg.Instances.GetOrNil(id)
		if !ok {
			return errors.ForBackend(errors.InitializationError, id, "backend client is not constructed", nil)
		}
		if d.ProjectsRoot != "" {
			i.paths.SetRoot(id, d.ProjectsRoot)
		}

		hctx, cancel := context.WithTimeout(ctx, i.opts.HandshakeTimeout)
		defer cancel()

		start := time.Now()
		result, err := inst.Initialize(hctx, i.initializeParams(d))
		elapsed := time.Since(start).Seconds()
		if err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				metrics.RecordHandshake(id, metrics.OutcomeTimeout, elapsed)
				return errors.ForBackend(errors.InitializationTimeout, id, "initialize handshake timed out", err)
			}
			metrics.RecordHandshake(id, metrics.OutcomeError, elapsed)
			return errors.ForBackend(errors.InitializationError, id, "initialize handshake failed", err)
		}

		caps := result.Capabilities
		i.reg.Capabilities.Add(id, &caps)
		metrics.RecordHandshake(id, metrics.OutcomeSuccess, elapsed)

		logger := slogutil.ForBackend(i.logger, id)
		if err := inst.Notify("initialized", struct{}{}); err != nil {
			logger.Warn("Failed to send initialized", "error", err.Error())
		}
		logger.Info("Backend initialized", "durationSec", elapsed)

		i.events.publishInitialized(BackendInitialized{
			EventID:      newEventID(),
			BackendID:    id,
			Capabilities: &caps,
			At:           time.Now(),
		})
		return nil
	})
}

func (i *Initializer) initializeParams(d *backends.Descriptor) *protocol.InitializeParams {
	root := i.paths.Root(d.ID)
	rootURI := paths.FileURI(root)

	params := &protocol.InitializeParams{
		ClientInfo:   &protocol.ClientInfo{Name: i.opts.ClientName, Version: i.opts.ClientVersion},
		RootPath:     root,
		RootURI:      rootURI,
		Capabilities: protocol.DefaultClientCapabilities(),
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: rootURI, Name: path.Base(root)},
		},
	}
	if d.Local {
		pid := os.Getpid()
		params.ProcessID = &pid
	}
	if len(d.InitializationOptions) > 0 {
		params.InitializationOptions = d.InitializationOptions
	}
	return params
}

func (i *Initializer) descriptor(id string) (*backends.Descriptor, error) {
	d, err := i.reg.Descriptors.Get(id)
	if err != nil {
		return nil, errors.ForBackend(errors.NotFound, id, "unknown backend", err)
	}
	return d, nil
}

// States returns the lifecycle state of every known backend.
func (i *Initializer) States() map[string]State {
	out := make(map[string]State, i.reg.Descriptors.Len())
	for _, id := range i.reg.Descriptors.IDs() {
		switch {
		case i.reg.Capabilities.Contains(id):
			out[id] = StateInitialized
		case i.reg.Instances.Contains(id):
			out[id] = StateInstanceReady
		case i.reg.Streams.Contains(id):
			out[id] = StateStreamsReady
		default:
			out[id] = StateUnconfigured
		}
	}
	return out
}

// Shutdown asks every constructed backend to shut down and closes streams
// that never got a client. Registry entries are left in place.
func (i *Initializer) Shutdown(ctx context.Context) {
	var g errgroup.Group
	for id, inst := range i.reg.Instances.All() {
		g.Go(func() error {
			if err := inst.Shutdown(ctx); err != nil {
				slogutil.ForBackend(i.logger, id).Debug("Shutdown failed", "error", err.Error())
			}
			return nil
		})
	}
	for id, streams := range i.reg.Streams.All() {
		if i.reg.Instances.Contains(id) {
			continue
		}
		g.Go(func() error {
			_ = streams.Close()
			return nil
		})
	}
	_ = g.Wait()
}
