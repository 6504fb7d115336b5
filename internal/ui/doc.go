// Package ui holds the small terminal helpers the one-shot commands share:
// the status symbols, the color palette and a line spinner shown while a
// command waits on the network.
package ui
