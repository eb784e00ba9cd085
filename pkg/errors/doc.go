// Package errors is the coded error taxonomy used across treetx. Callers
// branch on ErrorCode, never on message text.
package errors
