package resolution

import (
	"context"

	"github.com/pkg/errors"

	"github.com/whiskertrace/trapper/pkg/models"
)

// ErrMergeCycle means a merge chain loops back on itself. Chains are never
// written with cycles; hitting this indicates corrupted data and the walk
// stops rather than spinning.
var ErrMergeCycle = errors.New("merge chain contains a cycle")

// MergeChain is implemented by stores whose rows carry merge pointers.
// MergedInto returns the next hop for an id, or nil when the id is already
// canonical. The bool reports whether the id exists at all.
type MergeChain interface {
	MergedInto(ctx context.Context, id string) (*string, bool, error)
}

// CanonicalID follows merge pointers from id to the canonical
// representative. The walk is bounded and cycle-checked so a corrupt chain
// terminates with ErrMergeCycle instead of looping. Returns ("", nil) when
// the id does not exist.
func CanonicalID(ctx context.Context, chain MergeChain, id string) (string, error) {
	seen := make(map[string]bool, 4)
	current := id

	for hop := 0; hop < models.MaxMergeHops; hop++ {
		if seen[current] {
			return "", errors.Wrapf(ErrMergeCycle, "starting from %s", id)
		}
		seen[current] = true

		next, exists, err := chain.MergedInto(ctx, current)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", nil
		}
		if next == nil {
			return current, nil
		}
		current = *next
	}

	return "", errors.Wrapf(ErrMergeCycle, "merge chain from %s exceeds %d hops", id, models.MaxMergeHops)
}
