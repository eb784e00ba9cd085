// Package logging wires zerolog for treetx. Every package asks for a
// component logger through GetLogger; SetupLogger decides where the records
// go and how much of them is kept.
package logging
