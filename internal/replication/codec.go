package replication

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/core/ecs"
	"github.com/tradewind/server/internal/geom"
	"github.com/tradewind/server/internal/net/packet"
)

var (
	ErrUnknownKind          = errors.New("replication: unknown message kind")
	ErrTruncated            = errors.New("replication: truncated message")
	ErrDigestMismatch       = errors.New("replication: snapshot digest mismatch")
	ErrUnsupportedComponent = errors.New("replication: component is not replicated")
)

// Component tags inside component_replace, and presence bits inside a
// snapshot entry.
const (
	tagNamed     byte = 1
	tagSite      byte = 2
	tagFootprint byte = 3
	tagMesh      byte = 4
)

const flagZstd byte = 1 << 0

const maxDecodedSnapshot = 64 << 20

// Codec turns messages into kind-tagged payloads and back. Snapshot bodies
// at or above the threshold are zstd-compressed; a threshold of 0 never
// compresses. Safe for concurrent use.
type Codec struct {
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	threshold int
}

func NewCodec(threshold int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSnapshot))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec, threshold: threshold}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Encode serializes m with its kind byte first.
func (c *Codec) Encode(m Message) ([]byte, error) {
	w := packet.NewWriterWithKind(byte(m.Kind()))
	switch m := m.(type) {
	case Hello:
		w.WriteD(m.FamilyID)
		w.WriteS(m.Nickname)
	case Chat:
		w.WriteS(m.From)
		w.WriteS(m.Content)
	case EntityCreate:
		w.WriteQ(uint64(m.Entity))
	case EntityDelete:
		w.WriteQ(uint64(m.Entity))
	case ComponentReplace:
		w.WriteQ(uint64(m.Entity))
		if err := writeComponent(w, m.Value); err != nil {
			return nil, err
		}
	case *FullUpdate:
		c.encodeFullUpdate(w, m)
	default:
		return nil, fmt.Errorf("encode %T: %w", m, ErrUnknownKind)
	}
	return w.Bytes(), nil
}

// encodeFullUpdate writes flags, digest, then the body: world id, tick and
// entries. The digest is stored back into m.
func (c *Codec) encodeFullUpdate(w *packet.Writer, m *FullUpdate) {
	entries := packet.NewWriter()
	entries.WriteD(int32(len(m.Entries)))
	for i := range m.Entries {
		writeEntry(entries, &m.Entries[i])
	}
	m.Digest = xxhash.Sum64(entries.Bytes())

	body := packet.NewWriter()
	body.WriteBytes(m.WorldID[:])
	body.WriteQ(m.Tick)
	body.WriteBytes(entries.Bytes())

	raw := body.Bytes()
	var flags byte
	if c.threshold > 0 && len(raw) >= c.threshold {
		raw = c.enc.EncodeAll(raw, nil)
		flags |= flagZstd
	}
	w.WriteC(flags)
	w.WriteQ(m.Digest)
	w.WriteBytes(raw)
}

// Decode parses a kind-tagged payload. Unknown kinds fail with
// ErrUnknownKind and short payloads with ErrTruncated.
func (c *Codec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	r := packet.NewReader(data)
	kind := Kind(r.Kind())
	var (
		m   Message
		err error
	)
	switch kind {
	case KindHello:
		m = ReadHello(r)
	case KindChat:
		m = ReadChat(r)
	case KindEntityCreate:
		m = EntityCreate{Entity: ecs.EntityID(r.ReadQ())}
	case KindEntityDelete:
		m = EntityDelete{Entity: ecs.EntityID(r.ReadQ())}
	case KindComponentReplace:
		cr := ComponentReplace{Entity: ecs.EntityID(r.ReadQ())}
		cr.Value, err = readComponent(r, r.ReadC())
		m = cr
	case KindFullUpdate:
		m, err = c.decodeFullUpdate(r)
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	if err != nil {
		return nil, err
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("%s: %w", kind, ErrTruncated)
	}
	return m, nil
}

func (c *Codec) decodeFullUpdate(r *packet.Reader) (*FullUpdate, error) {
	flags := r.ReadC()
	digest := r.ReadQ()
	raw := r.Rest()
	if r.Err() != nil {
		return nil, fmt.Errorf("full_update header: %w", ErrTruncated)
	}
	if flags&flagZstd != 0 {
		var err error
		if raw, err = c.dec.DecodeAll(raw, nil); err != nil {
			return nil, fmt.Errorf("full_update body: %w", err)
		}
	}

	body := packet.NewBodyReader(raw)
	m := &FullUpdate{Digest: digest}
	copy(m.WorldID[:], body.ReadBytes(len(uuid.UUID{})))
	m.Tick = body.ReadQ()
	if body.Err() != nil {
		return nil, fmt.Errorf("full_update body: %w", ErrTruncated)
	}
	entries := body.Rest()
	if xxhash.Sum64(entries) != digest {
		return nil, ErrDigestMismatch
	}

	er := packet.NewBodyReader(entries)
	n := int(er.ReadD())
	if n < 0 || n > len(entries) {
		return nil, fmt.Errorf("full_update: bad entry count %d", n)
	}
	m.Entries = make([]Entry, 0, n)
	for i := 0; i < n && er.Err() == nil; i++ {
		m.Entries = append(m.Entries, readEntry(er))
	}
	if er.Err() != nil {
		return nil, fmt.Errorf("full_update entries: %w", ErrTruncated)
	}
	return m, nil
}

// ReadHello decodes a hello body from a reader positioned after the kind.
func ReadHello(r *packet.Reader) Hello {
	return Hello{FamilyID: r.ReadD(), Nickname: r.ReadS()}
}

// ReadChat decodes a chat body from a reader positioned after the kind.
func ReadChat(r *packet.Reader) Chat {
	return Chat{From: r.ReadS(), Content: r.ReadS()}
}

func writeComponent(w *packet.Writer, v any) error {
	switch c := v.(type) {
	case component.Named:
		w.WriteC(tagNamed)
		w.WriteS(c.Name)
	case component.Site:
		w.WriteC(tagSite)
		w.WriteF(c.Position.X)
		w.WriteF(c.Position.Y)
	case component.Footprint:
		w.WriteC(tagFootprint)
		w.WriteD(c.Dimensions.X)
		w.WriteD(c.Dimensions.Y)
	case component.RenderMesh:
		w.WriteC(tagMesh)
		w.WriteS(c.Mesh)
	default:
		return fmt.Errorf("%T: %w", v, ErrUnsupportedComponent)
	}
	return nil
}

func readComponent(r *packet.Reader, tag byte) (any, error) {
	switch tag {
	case tagNamed:
		return component.Named{Name: r.ReadS()}, nil
	case tagSite:
		return component.Site{Position: geom.V(r.ReadF(), r.ReadF())}, nil
	case tagFootprint:
		return component.Footprint{Dimensions: geom.C(r.ReadD(), r.ReadD())}, nil
	case tagMesh:
		return component.RenderMesh{Mesh: r.ReadS()}, nil
	default:
		if r.Err() != nil {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("component tag %d: %w", tag, ErrUnsupportedComponent)
	}
}

func bit(tag byte) byte { return 1 << (tag - 1) }

func writeEntry(w *packet.Writer, e *Entry) {
	var mask byte
	if e.Named != nil {
		mask |= bit(tagNamed)
	}
	if e.Site != nil {
		mask |= bit(tagSite)
	}
	if e.Footprint != nil {
		mask |= bit(tagFootprint)
	}
	if e.Mesh != nil {
		mask |= bit(tagMesh)
	}
	w.WriteQ(uint64(e.Entity))
	w.WriteC(mask)
	if e.Named != nil {
		w.WriteS(e.Named.Name)
	}
	if e.Site != nil {
		w.WriteF(e.Site.Position.X)
		w.WriteF(e.Site.Position.Y)
	}
	if e.Footprint != nil {
		w.WriteD(e.Footprint.Dimensions.X)
		w.WriteD(e.Footprint.Dimensions.Y)
	}
	if e.Mesh != nil {
		w.WriteS(e.Mesh.Mesh)
	}
}

func readEntry(r *packet.Reader) Entry {
	e := Entry{Entity: ecs.EntityID(r.ReadQ())}
	mask := r.ReadC()
	if mask&bit(tagNamed) != 0 {
		e.Named = &component.Named{Name: r.ReadS()}
	}
	if mask&bit(tagSite) != 0 {
		e.Site = &component.Site{Position: geom.V(r.ReadF(), r.ReadF())}
	}
	if mask&bit(tagFootprint) != 0 {
		e.Footprint = &component.Footprint{Dimensions: geom.C(r.ReadD(), r.ReadD())}
	}
	if mask&bit(tagMesh) != 0 {
		e.Mesh = &component.RenderMesh{Mesh: r.ReadS()}
	}
	return e
}
