// Package config loads store configuration from TOML.
//
// Load resolves the path (default ~/.config/effective_store/config.toml,
// with tilde expansion) and overlays any fields present on Default. A
// missing file is not an error.
//
// Example config.toml:
//
//	[store]
//	feedback_buffer = 64
//	subscriber_buffer = 16
//
//	[history]
//	max_entries = 1000
//
//	[log]
//	level = "debug"
//
//	[throttle]
//	window = "300ms"
//
//	[persist]
//	codec = "yaml"
//	key = "state"
//
//	[metrics]
//	namespace = "store"
package config
