// Package config loads bus configuration files.
//
// The format follows the file extension: .toml files are read with go-toml,
// .yaml and .yml files with yaml.v3.
//
//	debug = true
//	intercept_errors = false
//	log = true
//	log_data = false
//	flow = "sync"
//
// A missing file yields the defaults. Options converts a Config into bus
// options:
//
//	cfg, err := config.Load("databus.toml")
//	if err != nil {
//	    return err
//	}
//	bus := event.New(cfg.Options()...)
package config
