/*
Package queue reports how many tasks are waiting for each worker pool.

HTTPClient queries a work queue service:

	GET {base}/v1/pending/{provisionerId}/{pool}
	200 {"pendingTasks": 10}

Non-200 responses carrying {"error": "..."} surface that message. Static
serves a fixed backlog map for development and tests.
*/
package queue
