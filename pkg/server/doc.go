// Package server runs the connection pipeline of nweb.
//
// One acceptor goroutine accepts connections and puts them on a bounded
// queue. A fixed pool of workers takes them off in FIFO order and serves one
// request per connection:
//
//	acceptor -> queue -> worker -> parse -> resolve -> send -> close
//
// The acceptor never parses or serves. When the queue is full the acceptor
// blocks, so the process holds at most workers + queue capacity connections.
package server
