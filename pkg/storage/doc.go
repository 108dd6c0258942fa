// Package storage provides persistent storage for the Peacho bot.
// It uses BadgerDB as the embedded database; values are stored as JSON.
package storage
