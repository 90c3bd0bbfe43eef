// Package config provides centralized configuration management for the
// Karana planner runtime. It loads a single JSON document, applies defaults
// for every subsystem (server, NLU, device sources, queues, observability)
// and resolves relative paths against the config file location so the daemon
// can be launched from any working directory.
package config
