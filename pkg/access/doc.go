// Package access reports what the worker pool does with each connection.
//
// Workers emit one StartConn per dequeued connection followed by exactly one
// CompleteConn or ErrorConn. ConsoleTracker turns these into a coloured
// access log on the terminal and prints totals when the server stops.
package access
