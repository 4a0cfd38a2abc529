// Package network provides the ZeroMQ transport for compute requests.
// This package implements:
// - ZmqServer: REP socket answering request IPC payloads
// - ZmqClient: REQ socket issuing requests
package network
