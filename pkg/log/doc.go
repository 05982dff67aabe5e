// Package log provides structured logging via zerolog: a single global
// Logger initialized by Init, and component/context child loggers built
// with WithComponent, WithTaskID, and WithSubtaskID.
package log
