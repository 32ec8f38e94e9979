package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storefront/internal/domain"
)

const namespaceSep = ":"

// Namespace is a view of a Service whose keys all carry the "name:" prefix.
type Namespace struct {
	svc    *Service
	name   string
	prefix string
}

// Namespace registers name and returns its view. Names must be non-empty,
// free of ':' and must not be a prefix of, or prefixed by, a name already
// registered on this Service.
func (s *Service) Namespace(name string) (*Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, namespaceSep) {
		return nil, fmt.Errorf("invalid namespace name %q", name)
	}
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	for taken := range s.namespaces {
		if strings.HasPrefix(taken, name) || strings.HasPrefix(name, taken) {
			return nil, fmt.Errorf("namespace %q overlaps %q: %w", name, taken, domain.ErrNamespaceTaken)
		}
	}
	s.namespaces[name] = struct{}{}
	return &Namespace{svc: s, name: name, prefix: name + namespaceSep}, nil
}

func (n *Namespace) Name() string { return n.name }

func (n *Namespace) Put(ctx context.Context, key string, value interface{}, opts SetOptions) error {
	return n.svc.Put(ctx, n.prefix+key, value, opts)
}

func (n *Namespace) Set(ctx context.Context, key string, value interface{}, opts SetOptions) bool {
	return n.svc.Set(ctx, n.prefix+key, value, opts)
}

func (n *Namespace) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	return n.svc.Fetch(ctx, n.prefix+key)
}

func (n *Namespace) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	return n.svc.Get(ctx, n.prefix+key)
}

func (n *Namespace) Load(ctx context.Context, key string, dst interface{}) bool {
	return n.svc.Load(ctx, n.prefix+key, dst)
}

func (n *Namespace) Remove(ctx context.Context, key string) bool {
	return n.svc.Remove(ctx, n.prefix+key)
}

func (n *Namespace) Has(ctx context.Context, key string) bool {
	return n.svc.Has(ctx, n.prefix+key)
}

// Keys lists the keys of this namespace without the namespace prefix.
func (n *Namespace) Keys(ctx context.Context) []string {
	var keys []string
	for _, k := range n.svc.Keys(ctx) {
		if strings.HasPrefix(k, n.prefix) {
			keys = append(keys, strings.TrimPrefix(k, n.prefix))
		}
	}
	return keys
}
