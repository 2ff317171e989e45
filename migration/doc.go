// Package migration loads hand-written SQL migrations from disk.
//
// Migrations live in one directory per scope:
//
//	migrations/host/001_create_users.sql
//	migrations/tenant/001_create_projects.sql
//	migrations/both/002_add_audit_log.sql
//
// Each file holds a forward section and an optional backward section:
//
//	-- Migration: create users
//	-- Version: 1
//
//	-- UP --
//	CREATE TABLE users (id INTEGER PRIMARY KEY);
//
//	-- DOWN --
//	DROP TABLE users;
//
// Files are parsed once into a Registry, which orders them by numeric version
// regardless of the order in which the filesystem lists them.
package migration
