package postgres

import (
	"context"
	"errors"

	"github.com/and161185/media-vault/internal/model"
	"github.com/jackc/pgx/v5"
)

// ResourceRepo resolves resource ids against the media catalogue view
// maintained by the storage layer.
type ResourceRepo struct{ db *DB }

// NewResourceRepo constructs a resource resolver.
func NewResourceRepo(db *DB) *ResourceRepo { return &ResourceRepo{db: db} }

// Resolve looks a resource up; a missing row yields Exists=false.
func (r *ResourceRepo) Resolve(ctx context.Context, rt model.ResourceType, resourceID string) (model.Resource, error) {
	const q = `
SELECT owner_id, display_name, is_encrypted
FROM media_resources WHERE resource_type=$1 AND resource_id=$2`
	var res model.Resource
	err := r.db.q(ctx).QueryRow(ctx, q, string(rt), resourceID).Scan(&res.OwnerUserID, &res.DisplayName, &res.IsEncrypted)
	switch {
	case err == nil:
		res.Exists = true
		return res, nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.Resource{}, nil
	default:
		return model.Resource{}, wrapErr(err)
	}
}
