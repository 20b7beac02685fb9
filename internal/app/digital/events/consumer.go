package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink 持久化一批访问事件。
type Sink interface {
	Write(ctx context.Context, batch []AccessEvent) error
}

// PGSink 把事件批量写入 access_events 表。
type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, batch []AccessEvent) error {
	rows := make([][]any, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []any{nullID(e.LinkID), nullID(e.DigitalID), nullID(e.LineItemID), e.Granted, string(e.Reason), e.IP, e.UserAgent, e.At})
	}
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"access_events"},
		[]string{"link_id", "digital_id", "line_item_id", "granted", "reason", "ip", "user_agent", "occurred_at"},
		pgx.CopyFromRows(rows))
	return err
}

// nullID 把未知的 id（0）写成 NULL，例如 secret 不存在的访问。
func nullID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// Consumer 从 ChannelCollector 读事件，按数量或时间批量落库。
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run 阻塞消费，ctx 结束或 channel 关闭时把剩余事件落库后返回。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]AccessEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(c.sink, batch)
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				flush(c.sink, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flush(c.sink, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(c.sink, batch)
				batch = batch[:0]
			}
		}
	}
}

func flush(sink Sink, batch []AccessEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.Write(ctx, batch); err != nil {
		slog.Error("access events: write failed", "err", err, "count", len(batch))
		return
	}
	slog.Debug("access events: flushed", "count", len(batch))
}
