// Package tmdb provides a minimal TMDB API client for TV series metadata:
// search, details with per-season episode counts, season episode lists, and
// Chinese title resolution via the translations endpoint.
package tmdb
