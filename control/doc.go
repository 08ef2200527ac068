// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration and debug introspection layer for hioload-proxy.
//
// Config is loaded from an optional YAML file plus environment, validated,
// and resolved once into a server.Config. DebugProbes exposes live proxy
// counters to the command for on-demand state dumps.
package control
