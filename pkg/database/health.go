package database

import (
	"context"
	"time"
)

// PoolHealth is a point-in-time snapshot of connectivity and pool pressure,
// surfaced on the readiness endpoint.
type PoolHealth struct {
	Healthy         bool          `json:"healthy"`
	ResponseTime    time.Duration `json:"response_time"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	MaxOpenConns    int           `json:"max_open_conns"`
}

// Health pings the database and reports pool statistics. The error carries
// the ping failure; the snapshot is returned either way.
func (c *Client) Health(ctx context.Context) (PoolHealth, error) {
	start := time.Now()
	err := c.db.PingContext(ctx)

	stats := c.db.Stats()
	return PoolHealth{
		Healthy:         err == nil,
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		MaxOpenConns:    stats.MaxOpenConnections,
	}, err
}
