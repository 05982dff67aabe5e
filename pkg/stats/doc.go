/*
Package stats is the in-memory Stats Counter, grounded on
original_source/golem/task/taskcomputer.py's CompStats/IntStatsKeeper.
Counter tallies computed/error/timeout/requested task counts, mirrors
each increment into pkg/metrics's Prometheus counters, and can produce
or be restored from a pkg/storage.StatsSnapshot.
*/
package stats
