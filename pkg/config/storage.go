package config

// StorageConfig selects and parameterizes the report object store.
// When S3Bucket is empty, reports are written under LocalDir.
type StorageConfig struct {
	S3Bucket string
	S3Prefix string
	LocalDir string

	// ClusterName tags dedup keys and reports in multi-cluster setups.
	ClusterName string
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		LocalDir: "./reports",
	}
}

// StorageFromEnv overlays S3_BUCKET, S3_PREFIX, LOCAL_STORAGE_DIR, and
// CLUSTER_NAME on the defaults.
func StorageFromEnv() StorageConfig {
	cfg := DefaultStorageConfig()
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.LocalDir = getEnv("LOCAL_STORAGE_DIR", cfg.LocalDir)
	cfg.ClusterName = getEnv("CLUSTER_NAME", cfg.ClusterName)
	return cfg
}
