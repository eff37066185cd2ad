// Package crawler defines the domain types shared by the artist crawler:
// locations, artists, styles, oracle actions, and the capability interfaces
// that the worker state machine composes. It also hosts the pure helpers
// (style normalization, navigation guard, HTML preprocessing) that have no
// I/O of their own.
package crawler
