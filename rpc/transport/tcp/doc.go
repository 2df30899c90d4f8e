// Package tcp implements the TCP connectors of the base transport.
//
// Accepted connections are tuned with the TCP settings of the server configuration
// (no delay, keep alive, linger, socket buffer sizes). The default server buffer size
// is 512 KB and 16 workers process client requests per connection.
package tcp
