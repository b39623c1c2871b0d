package replication

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tradewind/server/internal/net"
)

// ErrDisconnected is returned by Poll once the host connection is gone and
// every buffered message has been consumed.
var ErrDisconnected = errors.New("replication: disconnected from host")

// Peer is the viewer side of replication: it joins a host and mirrors the
// snapshots it receives.
type Peer struct {
	sess   *net.Session
	codec  *Codec
	mirror *Mirror
	log    *zap.Logger

	// OnChat, when set, receives every chat line.
	OnChat func(Chat)
}

func NewPeer(sess *net.Session, codec *Codec, mirror *Mirror, log *zap.Logger) *Peer {
	return &Peer{sess: sess, codec: codec, mirror: mirror, log: log}
}

func (p *Peer) Mirror() *Mirror { return p.mirror }

// Join sends the hello message.
func (p *Peer) Join(family int, nickname string) error {
	return p.send(Hello{FamilyID: int32(family), Nickname: nickname})
}

// Say sends a chat line. The host fills in the sender.
func (p *Peer) Say(text string) error {
	return p.send(Chat{Content: text})
}

func (p *Peer) send(m Message) error {
	data, err := p.codec.Encode(m)
	if err != nil {
		return err
	}
	p.sess.Send(data)
	p.sess.FlushOutput()
	return nil
}

// Poll applies every message already received without blocking and returns
// how many were handled. Undecodable messages are logged and dropped.
func (p *Peer) Poll() (int, error) {
	n := 0
	for {
		select {
		case data := <-p.sess.InQueue:
			n++
			p.handle(data)
		default:
			if p.sess.IsClosed() {
				return n, ErrDisconnected
			}
			return n, nil
		}
	}
}

func (p *Peer) handle(data []byte) {
	msg, err := p.codec.Decode(data)
	if err != nil {
		p.log.Warn("message dropped", zap.Error(err))
		return
	}
	if chat, ok := msg.(Chat); ok {
		if p.OnChat != nil {
			p.OnChat(chat)
		}
		return
	}
	if err := p.mirror.Apply(msg); err != nil {
		p.log.Warn("apply failed", zap.Stringer("kind", msg.Kind()), zap.Error(err))
	}
}

func (p *Peer) Close() {
	p.sess.Close()
}
