package store

import (
	"context"
	"fmt"

	"github.com/upmon/upmon/internal/monitor"
)

const channelColumns = `id, type, config, is_active, created_at`

func scanChannel(row rowScanner) (monitor.NotificationChannel, error) {
	var ch monitor.NotificationChannel
	err := row.Scan(&ch.ID, &ch.Type, &ch.Config, &ch.IsActive, &ch.CreatedAt)
	return ch, err
}

// ListChannels returns all notification channels ordered by id.
func (s *Store) ListChannels(ctx context.Context) ([]monitor.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+channelColumns+` FROM notification_channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []monitor.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// CreateChannel registers a notification destination.
func (s *Store) CreateChannel(ctx context.Context, ch monitor.NotificationChannel) (monitor.NotificationChannel, error) {
	if ch.Config == nil {
		ch.Config = map[string]string{}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notification_channels (type, config, is_active)
		VALUES ($1, $2, $3)
		RETURNING `+channelColumns,
		ch.Type, ch.Config, ch.IsActive)

	created, err := scanChannel(row)
	if err != nil {
		return monitor.NotificationChannel{}, fmt.Errorf("insert channel: %w", err)
	}
	return created, nil
}

// DeleteChannel removes a channel. Outbox rows that referenced it keep
// their channel column and lose only the foreign key.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
