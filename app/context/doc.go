// Package context contains the objects shared by the app and cli packages:
// the filesystem, process environment, logger, clock, database opener and
// configuration used while running a command.
//
// It only exists to avoid a circular import between the app and cli packages.
package context
