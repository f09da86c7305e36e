package ops

import (
	"context"

	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// GetInput contains parameters for the Get operation.
type GetInput struct {
	Owner   OwnerInput
	Session host.Session
}

// GetOutput is one owner's state with display names and settings.
type GetOutput struct {
	OwnerView
	Names        host.Names `json:"names"`
	CustomFields []string   `json:"custom_fields"`
	AutoUpdate   bool       `json:"auto_update"`
}

// Get returns the ordered fields, location and pending suggestion of one
// owner. A character never seen before is shown with defaults but not saved.
func Get(ctx context.Context, d *Deps, input GetInput) (*GetOutput, error) {
	owner, err := ParseOwner(input.Owner, input.Session)
	if err != nil {
		return nil, err
	}

	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	st, ok := snap.LookupOwner(owner)
	if !ok {
		st = outfit.NewOwnerState(snap.Schema())
	}

	var pending *Pending
	if d.Board != nil {
		if p, ok := d.Board.Get(owner); ok {
			pending = &p
		}
	}

	names := host.ResolveNames(input.Session)
	return &GetOutput{
		OwnerView:    buildView(owner, st, snap.Schema(), names, pending),
		Names:        names,
		CustomFields: snap.CustomFields,
		AutoUpdate:   snap.AutoUpdate,
	}, nil
}
