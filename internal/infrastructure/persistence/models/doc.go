// Package models contains GORM persistence models. They stay separate from
// domain types so the domain layer carries no ORM tags; each model maps to
// and from its domain type.
package models
