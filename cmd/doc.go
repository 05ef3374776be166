// Package cmd implements the command-line interface of dMeta. It provides a
// hierarchical command structure with operations for running the server,
// interacting with it as a client and maintaining store directories offline.
//
// The package is organized into several subpackages:
//
//   - serve: Starting and configuring the dMeta server (local or replicated)
//   - meta: Key value and membership operations (get, put, members, add-node, ...)
//   - catalog: Databases, tables and compute nodes of the catalog
//   - store: Offline tooling for store directories (create, info, export, import, inspect)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Configuration is read from flags, DMETA_* environment variables (also from
// .env and .env.local) and an optional YAML file passed with --config.
//
// See dmeta -help for a list of all commands.
package cmd
