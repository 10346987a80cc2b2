package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/config"
	"github.com/sells-group/comps-cli/internal/db"
)

// openStore validates the store section and opens the configured database.
func openStore(ctx context.Context, c *config.Config) (db.Conn, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return conn, nil
}
