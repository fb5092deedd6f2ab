package clickhouse

// Config holds ClickHouse connection settings
type Config struct {
	Host          string
	Port          int
	Database      string
	Username      string
	Password      string
	MessagesTable string
	EventsTable   string
	ErrorsTable   string
}
