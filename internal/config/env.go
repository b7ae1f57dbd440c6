package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies DASHCORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DASHCORE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DASHCORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DASHCORE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Report routing
	if v := os.Getenv("DASHCORE_REMOTE_REPORTS"); v != "" {
		c.RemoteReports = splitList(v)
	}

	// Demo dataset
	if v := os.Getenv("DASHCORE_DEMO_STORE"); v != "" {
		c.Demo.Store = v
	}
	if v := os.Getenv("DASHCORE_DEMO_SQLITE_PATH"); v != "" {
		c.Demo.SQLitePath = v
	}
	if v := os.Getenv("DASHCORE_DEMO_POSTGRES_DSN"); v != "" {
		c.Demo.PostgresDSN = v
	}
	if v := os.Getenv("DASHCORE_DEMO_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Demo.Seed = seed
		}
	}

	// Remote source
	if v := os.Getenv("DASHCORE_REMOTE_KIND"); v != "" {
		c.Remote.Kind = v
	}
	if v := os.Getenv("DASHCORE_REMOTE_DRIVER"); v != "" {
		c.Remote.Driver = v
	}
	if v := os.Getenv("DASHCORE_REMOTE_DSN"); v != "" {
		c.Remote.DSN = v
	}
	if v := os.Getenv("DASHCORE_REMOTE_BASE_URL"); v != "" {
		c.Remote.BaseURL = v
	}

	// Export artifacts
	if v := os.Getenv("DASHCORE_BLOB_DRIVER"); v != "" {
		c.Export.Blob.Driver = v
	}
	if v := os.Getenv("DASHCORE_BLOB_ROOT"); v != "" {
		c.Export.Blob.Root = v
	}
	if v := os.Getenv("DASHCORE_S3_BUCKET"); v != "" {
		c.Export.Blob.Bucket = v
	}
	if v := os.Getenv("DASHCORE_S3_REGION"); v != "" {
		c.Export.Blob.Region = v
	}
	if v := os.Getenv("DASHCORE_S3_ENDPOINT"); v != "" {
		c.Export.Blob.Endpoint = v
	}
	if v := os.Getenv("DASHCORE_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Export.Blob.PathStyle = b
		}
	}
	if v := os.Getenv("DASHCORE_S3_ACCESS_KEY"); v != "" {
		c.Export.Blob.AccessKey = v
	}
	if v := os.Getenv("DASHCORE_S3_SECRET_KEY"); v != "" {
		c.Export.Blob.SecretKey = v
	}
	if v := os.Getenv("DASHCORE_EXPORT_COMPRESSION"); v != "" {
		c.Export.Compression = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
