// Package feed is the room's plain, unencrypted message log.
package feed
