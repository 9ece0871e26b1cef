// Package trackjudge is a Go client for the trackjudge scoring service.
//
// A search pipeline hands each (query, candidate file) pair to the service and keeps
// the candidates whose score clears a cutoff:
//
//	client, _ := trackjudge.New("http://localhost:6111", trackjudge.WithCutoff(0.7))
//	ok, _ := client.Accept(ctx, trackjudge.Submission{Query: q, Track: file})
//
// ScoreAll fans out over many candidates for the same query with bounded concurrency:
//
//	results, _ := client.ScoreAll(ctx, q, files)
//
// Errors returned by the service unwrap to the exported sentinels; use errors.Is.
package trackjudge
