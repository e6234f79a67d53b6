package service

import (
	"context"
	"time"

	"circleburo/internal/domain"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
)

// StatusPoller следит за статусом одной заявки, пока жив ctx наблюдателя.
type StatusPoller struct {
	reader   domain.StatusReader
	interval time.Duration
	logger   *zerolog.Logger
}

func NewStatusPoller(reader domain.StatusReader, interval time.Duration, logger *zerolog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = models.DefaultStatusPollInterval
	}
	return &StatusPoller{reader: reader, interval: interval, logger: logger}
}

func (p *StatusPoller) Interval() time.Duration {
	return p.interval
}

// Poll однократное чтение статуса.
func (p *StatusPoller) Poll(ctx context.Context, id int64) (models.Status, error) {
	return p.reader.GetLeadStatus(ctx, id)
}

// Watch опрашивает статус с постоянным периодом без backoff и лимита попыток.
// onChange вызывается при каждом изменении. Ошибки пишутся в debug и пропускаются.
// Возвращается при отмене ctx.
func (p *StatusPoller) Watch(ctx context.Context, id int64, current models.Status, onChange func(models.Status)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := p.reader.GetLeadStatus(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Debug().Err(err).Int64("lead_id", id).Msg("status poll failed")
				}
				continue
			}
			if status != current {
				current = status
				onChange(status)
			}
		}
	}
}
