// Package dht implements a mainline-compatible DHT client used to
// announce and resolve Mosaic addresses without a central directory.
//
// The DHT is an untrusted, best-effort rendezvous mechanism: responses
// are plain data until the fetched record passes verification, and a
// lookup that finds nothing is a normal empty result, not a failure.
//
// The client speaks KRPC (bencoded ping, find_node, get_peers,
// announce_peer, plus get/put for signed mutable bootstrap values) over
// UDP. It is a client by default and answers queries only when
// configured to serve.
package dht
