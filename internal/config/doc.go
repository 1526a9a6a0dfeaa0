// Package config loads, validates and watches the gateway configuration.
//
// Configuration is read from a YAML file in which ${VAR} and ${VAR:-default}
// references are substituted from the environment, then overlaid with
// OMNIGW_-prefixed environment variables (for example OMNIGW_SERVER_PORT or
// OMNIGW_AUTH_SECRET) and validated with struct tags.
package config
