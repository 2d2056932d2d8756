// cache.go holds the TTL-bounded read-through caches between the request
// path and the reconciled storage. Rules are cached per jurisdiction, value
// sets globally. A stale entry is rebuilt from storage on the next read;
// concurrent rebuilds are allowed and the last snapshot swap wins.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Rule is the engine-native representation of one stored business rule.
type Rule struct {
	Identifier string          `json:"identifier"`
	Version    string          `json:"version"`
	Country    string          `json:"country"`
	Type       string          `json:"type"`
	Logic      json.RawMessage `json:"logic"`
}

// ValueSet is the engine-native representation of one stored value set.
type ValueSet struct {
	ID     string          `json:"valueSetId"`
	Date   string          `json:"valueSetDate,omitempty"`
	Values json.RawMessage `json:"valueSetValues"`
}

// RuleSource reads reconciled rule bodies for one jurisdiction.
type RuleSource interface {
	RuleBodies(ctx context.Context, jurisdiction string) ([][]byte, error)
}

// ValueSetSource reads all reconciled value set bodies.
type ValueSetSource interface {
	ValueSetBodies(ctx context.Context) ([][]byte, error)
}

type ruleSnapshot struct {
	rules     []Rule
	expiresAt time.Time
}

// RuleCache is the per-jurisdiction read-through cache.
type RuleCache struct {
	source RuleSource
	ttl    time.Duration

	mu        sync.RWMutex
	snapshots map[string]ruleSnapshot
}

func NewRuleCache(source RuleSource, ttl time.Duration) *RuleCache {
	return &RuleCache{
		source:    source,
		ttl:       ttl,
		snapshots: make(map[string]ruleSnapshot),
	}
}

// Rules returns the jurisdiction's rules, rebuilding the snapshot from
// storage when absent or stale. A snapshot is served until it expires even
// if storage changed in the meantime; the TTL bounds the staleness.
func (c *RuleCache) Rules(ctx context.Context, jurisdiction string) ([]Rule, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[jurisdiction]
	c.mu.RUnlock()

	if ok && time.Now().Before(snap.expiresAt) {
		return snap.rules, nil
	}

	bodies, err := c.source.RuleBodies(ctx, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules for %s: %w", jurisdiction, err)
	}

	parsed := make([]Rule, 0, len(bodies))
	for _, body := range bodies {
		var r Rule
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("failed to parse stored rule: %w", err)
		}
		parsed = append(parsed, r)
	}

	c.mu.Lock()
	c.snapshots[jurisdiction] = ruleSnapshot{rules: parsed, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return parsed, nil
}

// Invalidate drops all snapshots; the next read rebuilds from storage.
// Called by the sync jobs after a successful reconciliation.
func (c *RuleCache) Invalidate() {
	c.mu.Lock()
	c.snapshots = make(map[string]ruleSnapshot)
	c.mu.Unlock()
}

// ValueSetCache is the global read-through cache for value sets.
type ValueSetCache struct {
	source ValueSetSource
	ttl    time.Duration

	mu        sync.RWMutex
	valueSets []ValueSet
	expiresAt time.Time
}

func NewValueSetCache(source ValueSetSource, ttl time.Duration) *ValueSetCache {
	return &ValueSetCache{source: source, ttl: ttl}
}

// ValueSets returns all value sets, rebuilding when stale.
func (c *ValueSetCache) ValueSets(ctx context.Context) ([]ValueSet, error) {
	c.mu.RLock()
	sets, expiresAt := c.valueSets, c.expiresAt
	c.mu.RUnlock()

	if sets != nil && time.Now().Before(expiresAt) {
		return sets, nil
	}

	bodies, err := c.source.ValueSetBodies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read value sets: %w", err)
	}

	parsed := make([]ValueSet, 0, len(bodies))
	for _, body := range bodies {
		var v ValueSet
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("failed to parse stored value set: %w", err)
		}
		parsed = append(parsed, v)
	}

	c.mu.Lock()
	c.valueSets = parsed
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	return parsed, nil
}

// Invalidate drops the snapshot; the next read rebuilds from storage.
func (c *ValueSetCache) Invalidate() {
	c.mu.Lock()
	c.valueSets = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
