package EVMRPC

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"interoprelay/types"
)

type DialFunc func(ctx context.Context, desc types.ChainDescriptor) (Client, error)

// Registry lazily dials one client per configured chain and keeps it for the process lifetime
type Registry struct {
	mu      sync.Mutex
	chains  map[uint64]types.ChainDescriptor
	clients map[uint64]Client
	dial    DialFunc
	logger  *zap.SugaredLogger
}

func NewRegistry(chains []types.ChainDescriptor, dial DialFunc, logger *zap.SugaredLogger) *Registry {
	if dial == nil {
		dial = Dial
	}
	r := &Registry{
		chains:  make(map[uint64]types.ChainDescriptor, len(chains)),
		clients: make(map[uint64]Client),
		dial:    dial,
		logger:  logger.Named("registry"),
	}
	for _, c := range chains {
		r.chains[c.ID] = c
	}
	return r
}

func (r *Registry) Descriptor(chainID uint64) (types.ChainDescriptor, error) {
	desc, ok := r.chains[chainID]
	if !ok {
		return types.ChainDescriptor{}, errors.Mark(errors.Newf("chain %d is not configured", chainID), types.ErrUnknownChain)
	}
	return desc, nil
}

func (r *Registry) GetClient(ctx context.Context, chainID uint64) (Client, error) {
	desc, err := r.Descriptor(chainID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}

	client, err := r.dial(ctx, desc)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %d (%s)", chainID, desc.Name)
	}
	r.logger.Infof("connected to chain %d (%s)", chainID, desc.Name)
	r.clients[chainID] = client
	return client, nil
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
