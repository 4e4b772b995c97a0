// Package models provides data model definitions for the Duet client core.
package models

// UUID is a string-typed UUID used as a primary key.
type UUID string
