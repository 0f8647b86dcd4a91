package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/spdeepak/livewatch/channel"
	"gorm.io/gorm"
)

// Repository implements channel.Repository on the streamers table.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ channel.Repository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) List(ctx context.Context) ([]channel.Channel, error) {
	var rows []streamerModel
	if err := r.db.WithContext(ctx).Order("position ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list streamers: %w", err)
	}
	out := make([]channel.Channel, 0, len(rows))
	for _, row := range rows {
		out = append(out, toChannel(row))
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, id string, update channel.Update) error {
	cols := updateColumns(update, r.now().UTC())
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&streamerModel{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update streamer %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return channel.ErrNotFound
	}
	return nil
}
