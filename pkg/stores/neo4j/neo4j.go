package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client wraps a bolt driver bound to a single database.
type Client struct {
	Database string
	driver   neo4j.DriverWithContext
}

/*
New opens a driver and verifies connectivity within timeout. The caller owns
the returned Client and must Close it.
*/
func New(
	ctx context.Context, uri, user, pass, database string, timeout time.Duration,
) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))

	if err != nil {
		return nil, fmt.Errorf("neo4j: open driver: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Client{Database: database, driver: driver}, nil
}

// Write runs a single statement in a write session and discards its records.
func (client *Client) Write(ctx context.Context, cypher string, params map[string]any) error {
	session := client.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)

	if err != nil {
		return fmt.Errorf("neo4j: write: %w", err)
	}

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("neo4j: write: %w", err)
	}

	return nil
}

// Read runs a single statement in a read session and returns every record as
// a key/value row.
func (client *Client) Read(
	ctx context.Context, cypher string, params map[string]any,
) ([]map[string]any, error) {
	session := client.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)

	if err != nil {
		return nil, fmt.Errorf("neo4j: read: %w", err)
	}

	var rows []map[string]any

	for result.Next(ctx) {
		rows = append(rows, RecordRow(result.Record()))
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j: read: %w", err)
	}

	return rows, nil
}

// Close releases the driver's connection pool.
func (client *Client) Close(ctx context.Context) error {
	return client.driver.Close(ctx)
}

// RecordRow flattens a record into a map keyed by its column names.
func RecordRow(record *neo4j.Record) map[string]any {
	row := make(map[string]any, len(record.Keys))

	for i, key := range record.Keys {
		if i < len(record.Values) {
			row[key] = record.Values[i]
		}
	}

	return row
}
