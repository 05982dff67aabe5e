/*
Package supervisor implements spec.md's per-subtask deadline sweep: once
per tick, check whether the running attempt's deadline has passed and
kill it if so, the way taskcomputer.py's run() calls check_timeout() on
every entry in current_computations while counting_task is set.
*/
package supervisor
