// Package config loads server defaults and concurrency tunables from a
// YAML file and the environment, following the teacher's viper-based
// initConfig pattern. It watches the config file for changes so an
// operator can add or remove upstream servers without restarting the
// process; per-request api_servers submitted through /upload still take
// precedence over whatever this package holds.
package config
