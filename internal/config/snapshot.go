package config

const redacted = "********"

// Snapshot is the read-only view of the configuration served at GET /config.
type Snapshot struct {
	Server struct {
		Hostname        string `json:"hostname"`
		Port            int    `json:"port"`
		ReadTimeout     string `json:"read_timeout"`
		ShutdownTimeout string `json:"shutdown_timeout"`
	} `json:"server"`
	Stream struct {
		QueueSize int    `json:"queue_size"`
		Heartbeat string `json:"heartbeat"`
	} `json:"stream"`
	Session struct {
		Retention       string `json:"retention"`
		CleanupInterval string `json:"cleanup_interval"`
	} `json:"session"`
	Redis struct {
		Enabled  bool   `json:"enabled"`
		Addr     string `json:"addr,omitempty"`
		Password string `json:"password,omitempty"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Metrics struct {
		Enabled bool   `json:"enabled"`
		Addr    string `json:"addr,omitempty"`
	} `json:"metrics"`
	Log LogConfig `json:"log"`
}

// Snapshot copies the configuration with secrets redacted. Hostname and port
// are the resolved listener values when the server has started.
func (c *Config) Snapshot() Snapshot {
	var s Snapshot
	s.Server.Hostname = c.Server.Hostname
	s.Server.Port = c.Server.Port
	s.Server.ReadTimeout = c.Server.ReadTimeout.String()
	s.Server.ShutdownTimeout = c.Server.ShutdownTimeout.String()
	s.Stream.QueueSize = c.Stream.QueueSize
	s.Stream.Heartbeat = c.Stream.Heartbeat.String()
	s.Session.Retention = c.Session.Retention.String()
	s.Session.CleanupInterval = c.Session.CleanupInterval.String()
	s.Redis.Enabled = c.Redis.Addr != ""
	s.Redis.Addr = c.Redis.Addr
	s.Redis.DB = c.Redis.DB
	if c.Redis.Password != "" {
		s.Redis.Password = redacted
	}
	s.Metrics.Enabled = c.Metrics.Addr != ""
	s.Metrics.Addr = c.Metrics.Addr
	s.Log = c.Log
	return s
}
