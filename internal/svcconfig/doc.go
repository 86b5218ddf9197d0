// Package svcconfig loads the service table -- socket paths, nprocs,
// nfds and tick interval -- the way the teacher's config package loads a
// Component registry: viper does the parsing, DefaultConfig seeds the
// table and Load fills per-entry defaults. It registers no flags;
// cmd/yansd sets only the base path on the viper instance.
package svcconfig
