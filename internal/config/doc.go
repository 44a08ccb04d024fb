// Package config provides configuration parsing for the chartsync server.
//
// The configuration is stored in chartsync.json. This package handles
// loading, saving, and validating configuration. Every field is optional.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "shutdownTimeout": "30s"
//	  },
//	  "storage": {
//	    "backend": "s3",
//	    "bucket": "dashboard-prefs",
//	    "prefix": "chartsync/",
//	    "region": "us-east-1",
//	    "endpoint": "http://localhost:9000",
//	    "usePathStyle": true
//	  },
//	  "metrics": {"enabled": true, "namespace": "chartsync"},
//	  "tracing": {"enabled": false},
//	  "log": {"level": "info", "format": "json"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Address())
package config
