package engine

import (
	"sync"

	"github.com/roach88/recon/internal/value"
)

// Claim records which run produced an entity in the current pass.
type Claim struct {
	Component string
	Ordinal   int
}

// ClaimSet tracks the entities claimed by runs of one pass.
//
// A run claims its output after cleanup. Later runs in the same pass never
// delete a claimed entity as their orphan, even if an out-of-date RunState
// points both ordinals at it. The set is scoped to one pass: per-component
// solves get a fresh set, a Solution shares one across its components.
type ClaimSet struct {
	mu     sync.Mutex
	claims map[claimKey]Claim
}

type claimKey struct {
	document string
	id       value.EntityID
}

// NewClaimSet creates an empty claim set.
func NewClaimSet() *ClaimSet {
	return &ClaimSet{claims: make(map[claimKey]Claim)}
}

// ClaimedBy returns the claim on entity id of document doc.
func (c *ClaimSet) ClaimedBy(doc string, id value.EntityID) (Claim, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.claims[claimKey{doc, id}]
	return cl, ok
}

// Claim marks the entity as produced by owner. A later claim replaces an
// earlier one.
func (c *ClaimSet) Claim(doc string, id value.EntityID, owner Claim) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[claimKey{doc, id}] = owner
}

// Clear drops every claim.
func (c *ClaimSet) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.claims)
}

// Len returns the number of claimed entities.
func (c *ClaimSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}
