package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 512
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "~/.leakscan/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "~/.leakscan/data/indices/records"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "~/.leakscan/data/uploads"
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = "leakscan-dumps"
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 2000
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryInitialIntervalMS == 0 {
		cfg.Ingest.RetryInitialIntervalMS = 200
	}
	if cfg.Ingest.MaxLineBytes == 0 {
		cfg.Ingest.MaxLineBytes = 1 << 20
	}
	if cfg.Ingest.DuplicatePolicy == "" {
		cfg.Ingest.DuplicatePolicy = DuplicateSkip
	}
	if cfg.Search.DefaultPageSize == 0 {
		cfg.Search.DefaultPageSize = 20
	}
	if cfg.Search.MaxPageSize == 0 {
		cfg.Search.MaxPageSize = 1000
	}
	if cfg.Search.ExportLimit == 0 {
		cfg.Search.ExportLimit = 10000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt"}
	}
	if cfg.Watch.OwnerID == "" {
		cfg.Watch.OwnerID = "watcher"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
