package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

type snapshot struct {
	Timestamp string                     `json:"timestamp"`
	Config    Config                     `json:"config"`
	Data      map[string]json.RawMessage `json:"data"`
}

// Backup serializes every live item together with the current configuration.
// It returns an empty string when the snapshot cannot be encoded.
func (s *Service) Backup(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := json.Marshal(snapshot{
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Config:    s.cfg,
		Data:      s.all(ctx),
	})
	if err != nil {
		s.logger.WithError(err).Error("backup storage")
		return ""
	}
	return string(out)
}

// Restore replaces the whole namespace with the items of a Backup. Nothing is
// cleared when data does not parse.
func (s *Service) Restore(ctx context.Context, data string) bool {
	var snap snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		s.logger.WithError(err).Error("restore storage")
		return false
	}
	if snap.Data == nil {
		s.logger.Error("restore storage: backup has no data")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clearAll(ctx) {
		return false
	}
	ok := s.replay(ctx, snap.Data)
	s.logger.WithField("count", len(snap.Data)).Info("storage restored")
	return ok
}

// Export returns the live items as indented JSON.
func (s *Service) Export(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := json.MarshalIndent(s.all(ctx), "", "  ")
	if err != nil {
		s.logger.WithError(err).Error("export storage")
		return ""
	}
	return string(out)
}

// Import writes every item of an Export on top of the existing data.
func (s *Service) Import(ctx context.Context, data string) bool {
	var items map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		s.logger.WithError(err).Error("import storage")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay(ctx, items)
}

func (s *Service) replay(ctx context.Context, items map[string]json.RawMessage) bool {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ok := true
	for _, k := range keys {
		if err := s.put(ctx, k, items[k], SetOptions{}); err != nil {
			s.logger.WithError(err).WithField("key", k).Error("set item")
			ok = false
		}
	}
	return ok
}
