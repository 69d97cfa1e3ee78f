package dht

import (
	"net"
	"time"

	"github.com/zeebo/bencode"
	"go.uber.org/zap"

	"github.com/justinmoon/mosaic-core/keys"
)

// KRPC error codes from BEP-0005 / BEP-0044.
const (
	krErrGeneric   = 201
	krErrProtocol  = 203
	krErrBadToken  = 203
	krErrUnknownQ  = 204
	krErrSeqTooLow = 302
	krErrBadSig    = 206
)

// handleQuery answers one inbound query. Non-serving clients stay
// silent; a node that does not serve should not appear useful.
func (c *Client) handleQuery(msg *krpcMessage, from *net.UDPAddr) {
	if !c.cfg.Serve {
		return
	}
	now := c.cfg.Clock.Now()

	var reply []byte
	var err error
	switch msg.Q {
	case "ping":
		reply, err = c.servePing(msg, from, now)
	case "find_node":
		reply, err = c.serveFindNode(msg, from, now)
	case "get_peers":
		reply, err = c.serveGetPeers(msg, from, now)
	case "announce_peer":
		reply, err = c.serveAnnounce(msg, from, now)
	case "get":
		reply, err = c.serveGet(msg, from, now)
	case "put":
		reply, err = c.servePut(msg, from, now)
	default:
		reply, err = marshalError(msg.TxID, krErrUnknownQ, "unknown method "+msg.Q)
	}
	if err != nil {
		c.log.Debug("cannot answer query", zap.String("method", msg.Q), zap.Error(err))
		return
	}
	if _, err := c.conn.WriteTo(reply, from); err != nil {
		c.log.Debug("reply send failed", zap.String("to", from.String()), zap.Error(err))
	}
}

// learn admits the querying node into the routing table.
func (c *Client) learn(rawID string, from *net.UDPAddr, now time.Time) {
	id, err := NodeIDFromBytes([]byte(rawID))
	if err != nil || id == c.cfg.NodeID {
		return
	}
	c.table.Update(Contact{ID: id, Addr: from}, now)
}

func (c *Client) servePing(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krPingArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad ping args")
	}
	c.learn(args.ID, from, now)
	return marshalResponse(msg.TxID, &krResponse{ID: string(c.cfg.NodeID[:])})
}

func (c *Client) serveFindNode(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krFindNodeArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad find_node args")
	}
	c.learn(args.ID, from, now)
	target, err := NodeIDFromBytes([]byte(args.Target))
	if err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad find_node target")
	}
	return marshalResponse(msg.TxID, &krResponse{
		ID:    string(c.cfg.NodeID[:]),
		Nodes: compactNodes(c.table.Closest(target, c.cfg.K)),
	})
}

func (c *Client) serveGetPeers(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krGetPeersArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad get_peers args")
	}
	c.learn(args.ID, from, now)
	target, err := NodeIDFromBytes([]byte(args.Target))
	if err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad get_peers target")
	}

	res := &krResponse{
		ID:    string(c.cfg.NodeID[:]),
		Token: c.tokens.issue(from, target, now),
		Nodes: compactNodes(c.table.Closest(target, c.cfg.K)),
	}
	for _, e := range c.peers.get(target, now) {
		if packed, ok := compactPeer(e); ok {
			res.Values = append(res.Values, packed)
		}
	}
	return marshalResponse(msg.TxID, res)
}

func (c *Client) serveAnnounce(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krAnnounceArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad announce_peer args")
	}
	c.learn(args.ID, from, now)
	target, err := NodeIDFromBytes([]byte(args.Target))
	if err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad announce_peer target")
	}
	if !c.tokens.validate(args.Token, from, target, now) {
		return marshalError(msg.TxID, krErrBadToken, "token expired or not ours")
	}
	if args.Port <= 0 || args.Port > 65535 {
		return marshalError(msg.TxID, krErrProtocol, "port out of range")
	}
	c.peers.add(target, Endpoint{IP: from.IP, Port: int(args.Port)}, now)
	return marshalResponse(msg.TxID, &krResponse{ID: string(c.cfg.NodeID[:])})
}

func (c *Client) serveGet(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krGetArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad get args")
	}
	c.learn(args.ID, from, now)
	target, err := NodeIDFromBytes([]byte(args.Target))
	if err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad get target")
	}

	res := &krResponse{
		ID:    string(c.cfg.NodeID[:]),
		Token: c.tokens.issue(from, target, now),
		Nodes: compactNodes(c.table.Closest(target, c.cfg.K)),
	}
	if item, ok := c.mutables.get(target); ok {
		res.Key = string(item.Key[:])
		res.Seq = item.Seq
		res.Sig = string(item.Sig[:])
		res.Value = string(item.Value)
	}
	return marshalResponse(msg.TxID, res)
}

func (c *Client) servePut(msg *krpcMessage, from *net.UDPAddr, now time.Time) ([]byte, error) {
	var args krPutArgs
	if err := bencode.DecodeBytes(msg.Args, &args); err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad put args")
	}
	c.learn(args.ID, from, now)

	key, err := keys.PublicKeyFromBytes([]byte(args.Key))
	if err != nil {
		return marshalError(msg.TxID, krErrProtocol, "bad put key")
	}
	if len(args.Sig) != keys.SignatureSize {
		return marshalError(msg.TxID, krErrBadSig, "bad signature length")
	}
	var sig keys.Signature
	copy(sig[:], args.Sig)
	item := MutableItem{
		Key:   key,
		Salt:  []byte(args.Salt),
		Seq:   args.Seq,
		Value: []byte(args.Value),
		Sig:   sig,
	}
	if !item.VerifySig() {
		return marshalError(msg.TxID, krErrBadSig, "signature does not verify")
	}
	if !c.tokens.validate(args.Token, from, item.Target(), now) {
		return marshalError(msg.TxID, krErrBadToken, "token expired or not ours")
	}
	if !c.mutables.put(item) {
		return marshalError(msg.TxID, krErrSeqTooLow, "a newer seq is stored")
	}
	return marshalResponse(msg.TxID, &krResponse{ID: string(c.cfg.NodeID[:])})
}
