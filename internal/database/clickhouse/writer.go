package clickhouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"can-testbench/internal/models"
)

type eventRecord struct {
	timestamp   time.Time
	eventType   string
	refID       string
	description string
}

type errorRecord struct {
	timestamp time.Time
	source    string
	code      string
	message   string
}

// Writer persists CAN messages, events and errors to ClickHouse.
// Messages are batched and flushed on size or a one-second ticker;
// enqueueing never blocks, records are dropped with a warning when
// the channels are full.
type Writer struct {
	conn       driver.Conn
	config     Config
	batchSize  int
	batch      []models.CANMessage
	msgChan    chan models.CANMessage
	eventChan  chan eventRecord
	errorChan  chan errorRecord
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	flushTimer *time.Ticker
}

// New connects to ClickHouse and prepares the log tables
func New(config Config, batchSize int) (*Writer, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := createTables(conn, config); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		conn:       conn,
		config:     config,
		batchSize:  batchSize,
		batch:      make([]models.CANMessage, 0, batchSize),
		msgChan:    make(chan models.CANMessage, batchSize*2),
		eventChan:  make(chan eventRecord, 64),
		errorChan:  make(chan errorRecord, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		flushTimer: time.NewTicker(1 * time.Second),
	}

	go writer.writeLoop()
	return writer, nil
}

// createTables creates the log tables in ClickHouse
func createTables(conn driver.Conn, config Config) error {
	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				timestamp DateTime64(6),
				interface String,
				can_id UInt32,
				data Array(UInt8),
				direction String,
				scenario_id String
			) ENGINE = MergeTree()
			ORDER BY (timestamp, can_id)
			PARTITION BY toYYYYMMDD(timestamp)
			TTL timestamp + INTERVAL 1 MONTH
			SETTINGS index_granularity = 8192
		`, config.MessagesTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				timestamp DateTime64(6),
				event_type String,
				ref_id String,
				description String
			) ENGINE = MergeTree()
			ORDER BY timestamp
		`, config.EventsTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				timestamp DateTime64(6),
				source String,
				code String,
				message String
			) ENGINE = MergeTree()
			ORDER BY timestamp
		`, config.ErrorsTable),
	}

	for _, query := range queries {
		if err := conn.Exec(context.Background(), query); err != nil {
			return err
		}
	}
	return nil
}

// writeLoop processes queued records until Close
func (w *Writer) writeLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			// The loop context is already cancelled here; the final
			// flush needs a live one.
			if len(w.batch) > 0 {
				w.flush(context.Background())
			}
			return

		case msg := <-w.msgChan:
			w.batch = append(w.batch, msg)
			if len(w.batch) >= w.batchSize {
				w.flush(w.ctx)
			}

		case ev := <-w.eventChan:
			w.insertEvent(ev)

		case rec := <-w.errorChan:
			w.insertError(rec)

		case <-w.flushTimer.C:
			if len(w.batch) > 0 {
				w.flush(w.ctx)
			}
		}
	}
}

// flush writes the current message batch
func (w *Writer) flush(ctx context.Context) {
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", w.config.MessagesTable))
	if err != nil {
		log.Printf("clickhouse: failed to prepare batch: %v", err)
		w.batch = w.batch[:0]
		return
	}

	for _, msg := range w.batch {
		err = batch.Append(
			msg.Timestamp,
			msg.Interface,
			msg.Frame.ID,
			msg.Frame.Payload(),
			msg.Direction(),
			msg.ScenarioID,
		)
		if err != nil {
			log.Printf("clickhouse: failed to append to batch: %v", err)
			w.batch = w.batch[:0]
			return
		}
	}

	if err := batch.Send(); err != nil {
		log.Printf("clickhouse: failed to send batch of %d messages: %v", len(w.batch), err)
	}
	w.batch = w.batch[:0]
}

func (w *Writer) insertEvent(ev eventRecord) {
	err := w.conn.Exec(w.ctx,
		fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", w.config.EventsTable),
		ev.timestamp, ev.eventType, ev.refID, ev.description)
	if err != nil {
		log.Printf("clickhouse: failed to insert event: %v", err)
	}
}

func (w *Writer) insertError(rec errorRecord) {
	err := w.conn.Exec(w.ctx,
		fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", w.config.ErrorsTable),
		rec.timestamp, rec.source, rec.code, rec.message)
	if err != nil {
		log.Printf("clickhouse: failed to insert error record: %v", err)
	}
}

// LogCANMessage queues a message for batched writing
func (w *Writer) LogCANMessage(msg models.CANMessage) {
	select {
	case w.msgChan <- msg:
	default:
		log.Printf("clickhouse: message channel full, dropping record")
	}
}

// LogEvent queues a lifecycle event
func (w *Writer) LogEvent(eventType, refID, description string) {
	ev := eventRecord{time.Now().UTC(), eventType, refID, description}
	select {
	case w.eventChan <- ev:
	default:
		log.Printf("clickhouse: event channel full, dropping record")
	}
}

// LogError queues an error record
func (w *Writer) LogError(source, code, message string) {
	rec := errorRecord{time.Now().UTC(), source, code, message}
	select {
	case w.errorChan <- rec:
	default:
		log.Printf("clickhouse: error channel full, dropping record")
	}
}

// Close stops the write loop, waits for its final flush, then closes
// the connection
func (w *Writer) Close() error {
	w.cancel()
	<-w.done
	w.flushTimer.Stop()

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
