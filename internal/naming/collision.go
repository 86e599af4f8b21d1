package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// CollisionPolicy decides what happens when two sources flatten to the same
// destination.
type CollisionPolicy string

const (
	CollisionSuffix    CollisionPolicy = "suffix"    // Rename the later claimant to "<stem>_dupN<ext>" (default).
	CollisionReject    CollisionPolicy = "reject"    // Refuse the later claimant.
	CollisionOverwrite CollisionPolicy = "overwrite" // Let the later claimant overwrite.
)

// ErrCollision is returned by Claim under CollisionReject.
var ErrCollision = errors.New("output path already claimed")

// ParseCollisionPolicy validates a policy name.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case CollisionSuffix, CollisionReject, CollisionOverwrite:
		return CollisionPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid collision policy %q (use 'suffix', 'reject' or 'overwrite')", s)
	}
}

// Claim is the outcome of CollisionResolver.Claim.
type Claim struct {
	Path     string // Final destination.
	Collided bool   // The requested path was owned by another input.
	Owner    string // Input that owned the requested path, when Collided.
}

// CollisionResolver tracks destination paths claimed by source files during
// one course run and applies a CollisionPolicy to duplicates. All methods
// are goroutine-safe.
type CollisionResolver struct {
	mu       sync.Mutex
	policy   CollisionPolicy
	owners   map[string]string // output path → input path that owns it
	counters map[string]int    // requested output path → next dup counter
}

// NewCollisionResolver creates a ready-to-use resolver. An empty policy
// means CollisionSuffix.
func NewCollisionResolver(policy CollisionPolicy) *CollisionResolver {
	if policy == "" {
		policy = CollisionSuffix
	}
	return &CollisionResolver{
		policy:   policy,
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

// Claim registers input as the writer of requested. An unclaimed path, or
// one already owned by input, is returned unchanged. Otherwise the policy
// applies: suffix picks the next free "_dupN" variant, reject returns
// ErrCollision, overwrite hands the path to input.
func (cr *CollisionResolver) Claim(input, requested string) (Claim, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	owner, exists := cr.owners[requested]
	if !exists || owner == input {
		cr.owners[requested] = input
		return Claim{Path: requested}, nil
	}

	switch cr.policy {
	case CollisionReject:
		return Claim{Path: requested, Collided: true, Owner: owner},
			fmt.Errorf("%w: %s (by %s)", ErrCollision, requested, owner)
	case CollisionOverwrite:
		cr.owners[requested] = input
		return Claim{Path: requested, Collided: true, Owner: owner}, nil
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	s := stem(base)
	ext := base[len(s):]

	counter := cr.counters[requested]
	if counter == 0 {
		counter = 1
	}
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s%sdup%d%s", s, Separator, counter, ext))
		cOwner, cExists := cr.owners[candidate]
		if !cExists || cOwner == input {
			cr.counters[requested] = counter + 1
			cr.owners[candidate] = input
			return Claim{Path: candidate, Collided: true, Owner: owner}, nil
		}
		counter++
	}
}
