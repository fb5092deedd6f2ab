package influxdb

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
)

// Writer persists decoded signal values to InfluxDB as time-series
// points, one measurement per message name with a field per signal.
// This is the signal history behind dashboard queries.
type Writer struct {
	client     *influxdb3.Client
	batchSize  int
	batch      []*influxdb3.Point
	pointChan  chan *influxdb3.Point
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
}

// New creates an InfluxDB signal writer
func New(config Config, batchSize int) (*Writer, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     config.URL,
		Token:    config.Token,
		Database: config.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		client:     client,
		batchSize:  batchSize,
		batch:      make([]*influxdb3.Point, 0, batchSize),
		pointChan:  make(chan *influxdb3.Point, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(1 * time.Second),
	}

	go writer.writeLoop()
	return writer, nil
}

// writeLoop batches queued points and flushes them
func (w *Writer) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			if len(w.batch) > 0 {
				w.flush()
			}
			return

		case point := <-w.pointChan:
			w.batch = append(w.batch, point)
			if len(w.batch) >= w.batchSize {
				w.flush()
			}

		case <-w.flushTimer.C:
			if len(w.batch) > 0 {
				w.flush()
			}
		}
	}
}

// flush writes the current batch of points
func (w *Writer) flush() {
	if err := w.client.WritePoints(w.ctx, w.batch); err != nil {
		log.Printf("influxdb: failed to write %d points: %v", len(w.batch), err)
	}
	w.batch = w.batch[:0]
}

// WriteSignals queues one decoded frame's signal values
func (w *Writer) WriteSignals(message string, canID uint32, values map[string]float64, ts time.Time) {
	if len(values) == 0 {
		return
	}

	fields := make(map[string]any, len(values))
	for name, value := range values {
		fields[name] = value
	}

	point := influxdb3.NewPoint(
		message,
		map[string]string{
			"can_id": fmt.Sprintf("0x%X", canID),
		},
		fields,
		ts,
	)

	select {
	case w.pointChan <- point:
	default:
		log.Printf("influxdb: point channel full, dropping signals for 0x%X", canID)
	}
}

// Close stops the write loop and closes the client
func (w *Writer) Close() error {
	w.cancel()
	w.flushTimer.Stop()

	if w.client != nil {
		w.client.Close()
	}
	return nil
}
