// Package config loads cellgraph.json, the configuration file read by the
// cellgraph command.
//
// # Configuration File Structure
//
//	{
//	  "scheduler": {"cycleLimit": 100},
//	  "log": {"level": "info", "format": "text"},
//	  "metrics": {"enabled": true, "namespace": "cellgraph", "path": "/metrics"},
//	  "tracing": {"enabled": false, "tracerName": "cellgraph"},
//	  "live": {
//	    "addr": "localhost:8080",
//	    "path": "/ws",
//	    "writeTimeout": "10s",
//	    "tickInterval": "1s",
//	    "items": 12
//	  }
//	}
//
// Every field is optional. Durations use time.ParseDuration syntax.
//
// # Usage
//
//	cfg, err := config.Resolve(flagPath, ".")
//	if err != nil {
//	    errors.Print(os.Stderr, err)
//	    os.Exit(1)
//	}
//	if err := cfg.Validate(); err != nil {
//	    ...
//	}
//	logger := cfg.NewLogger(os.Stderr)
package config
