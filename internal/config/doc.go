// Package config provides configuration management for ChartPort.
//
// Static configuration is loaded from environment variables using the env
// package; all values have sensible defaults for development use. Pipeline
// tuning parameters additionally live behind a Runtime so the operator API
// can update them while the pipeline is running.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
