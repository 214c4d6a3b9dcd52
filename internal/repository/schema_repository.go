package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/model"
)

// SchemaRepo reads table metadata from the live store catalog.
type SchemaRepo struct {
	store *database.Store
}

// NewSchemaRepo constructs a SchemaRepo with the provided store handle.
func NewSchemaRepo(store *database.Store) *SchemaRepo {
	return &SchemaRepo{store: store}
}

// Tables returns every ingested table with its ordered columns and types.
// Staging tables of an in-flight load are left out.
func (r *SchemaRepo) Tables(ctx context.Context) (map[string]model.TableInfo, error) {
	out := map[string]model.TableInfo{}
	err := r.store.WithConn(ctx, func(conn *sql.Conn) error {
		names, err := r.store.Tables(ctx, conn)
		if err != nil {
			return err
		}
		for _, name := range names {
			if strings.HasSuffix(name, database.StagingSuffix) {
				continue
			}
			schema, err := r.store.Schema(ctx, conn, name)
			if err != nil {
				return err
			}
			out[name] = schema.Info()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
