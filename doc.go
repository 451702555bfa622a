// Package dgram implements a UDP channel for a Linux edge-triggered epoll
// reactor.
//
// A Channel owns one non-blocking datagram socket. On every read readiness
// event it receives datagrams until the kernel reports no more data and hands
// each one to its Pipeline; on every flush it writes queued datagrams in
// order until the send buffer is full, then arms write interest and resumes
// on the writable event. Receive buffers are sized by a RecvSizer from the
// sizes of recent datagrams.
//
// Multicast membership and connect are not supported.
package dgram
