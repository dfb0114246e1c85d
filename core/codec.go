package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// axpdMagic and axpdVersion identify the binary container described in
// spec.md §4.4/§6.
var axpdMagic = [4]byte{'A', 'X', 'P', 'D'}

const axpdVersion uint16 = 1

var planeCode = map[Plane]byte{
	PlaneMeta:     0,
	PlaneAccepted: 1,
	PlaneEvidence: 2,
	PlaneData:     3,
}

var codeToPlane = map[byte]Plane{
	0: PlaneMeta,
	1: PlaneAccepted,
	2: PlaneEvidence,
	3: PlaneData,
}

// confidenceToBits converts a fixed-point confidence_fp (numerator over
// 10^6) to the IEEE-754 bits of its float32 representation, the on-disk
// form named by spec.md §4.4.
func confidenceToBits(fp uint32) uint32 {
	return math.Float32bits(float32(fp) / float32(ConfidenceDenominator))
}

// bitsToConfidence converts stored confidence bits back to a fixed-point
// numerator, rounding down deterministically (spec.md §4.4: "consumers
// needing fixed-point convert deterministically").
func bitsToConfidence(bits uint32) uint32 {
	f := math.Float32frombits(bits)
	return uint32(math.Floor(float64(f) * ConfidenceDenominator))
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func writeAttrs(buf *bytes.Buffer, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var cntBuf [4]byte
	binary.LittleEndian.PutUint32(cntBuf[:], uint32(len(keys)))
	buf.Write(cntBuf[:])
	for _, k := range keys {
		writeString(buf, k)
		writeString(buf, attrs[k])
	}
}

func readAttrs(r *bytes.Reader) (map[string]string, error) {
	var cntBuf [4]byte
	if _, err := io.ReadFull(r, cntBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(cntBuf[:])
	attrs := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		attrs[k] = v
	}
	return attrs, nil
}

// Encode serializes a PathDB to its canonical .axpd byte form: entities
// sorted by id, attributes sorted by key, relations sorted by
// (from, rel_type, to) — spec.md §4.4's determinism requirement so two
// independent builds of the same snapshot produce bitwise-identical
// bytes.
func Encode(p *PathDB) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(axpdMagic[:])
	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], axpdVersion)
	buf.Write(verBuf[:])

	var digestBuf [8]byte
	binary.LittleEndian.PutUint64(digestBuf[:], p.ModuleDigest)
	buf.Write(digestBuf[:])
	writeString(&buf, p.WALSnapshotID)

	entities := p.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	relations := append([]*RelationEdge(nil), p.relations...)
	sort.Slice(relations, func(i, j int) bool {
		if relations[i].From != relations[j].From {
			return relations[i].From < relations[j].From
		}
		if relations[i].RelType != relations[j].RelType {
			return relations[i].RelType < relations[j].RelType
		}
		return relations[i].To < relations[j].To
	})

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(entities)))
	buf.Write(countBuf[:])
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(relations)))
	buf.Write(countBuf[:])

	for _, e := range entities {
		var idBuf [8]byte
		binary.LittleEndian.PutUint64(idBuf[:], e.ID)
		buf.Write(idBuf[:])
		writeString(&buf, e.EntityType)
		writeString(&buf, e.Name)
		code, ok := planeCode[e.Plane]
		if !ok {
			return nil, fmt.Errorf("axiograph: unknown plane %q for entity %d", e.Plane, e.ID)
		}
		buf.WriteByte(code)
		writeAttrs(&buf, e.Attrs)
	}

	for _, r := range relations {
		var idBuf [8]byte
		binary.LittleEndian.PutUint64(idBuf[:], r.From)
		buf.Write(idBuf[:])
		writeString(&buf, r.RelType)
		binary.LittleEndian.PutUint64(idBuf[:], r.To)
		buf.Write(idBuf[:])
		var confBuf [4]byte
		binary.LittleEndian.PutUint32(confBuf[:], confidenceToBits(r.ConfidenceFP))
		buf.Write(confBuf[:])
		writeAttrs(&buf, r.Attrs)
	}

	return buf.Bytes(), nil
}

// Decode parses a canonical .axpd byte form back into a PathDB.
func Decode(data []byte) (*PathDB, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("axiograph: read magic: %w", err)
	}
	if magic != axpdMagic {
		return nil, fmt.Errorf("axiograph: bad .axpd magic %q", magic)
	}
	var verBuf [2]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint16(verBuf[:]); v != axpdVersion {
		return nil, fmt.Errorf("axiograph: unsupported .axpd version %d", v)
	}

	var digestBuf [8]byte
	if _, err := io.ReadFull(r, digestBuf[:]); err != nil {
		return nil, err
	}
	moduleDigest := binary.LittleEndian.Uint64(digestBuf[:])
	walID, err := readString(r)
	if err != nil {
		return nil, err
	}
	pdb := NewPathDB(moduleDigest, walID)

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	entityCount := binary.LittleEndian.Uint32(countBuf[:])
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	relationCount := binary.LittleEndian.Uint32(countBuf[:])

	for i := uint32(0); i < entityCount; i++ {
		var idBuf [8]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, err
		}
		id := binary.LittleEndian.Uint64(idBuf[:])
		etype, err := readString(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		codeByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		plane, ok := codeToPlane[codeByte]
		if !ok {
			return nil, fmt.Errorf("axiograph: unknown plane code %d for entity %d", codeByte, id)
		}
		attrs, err := readAttrs(r)
		if err != nil {
			return nil, err
		}
		pdb.PutEntity(&Entity{ID: id, EntityType: etype, Name: name, Plane: plane, Attrs: attrs})
	}

	for i := uint32(0); i < relationCount; i++ {
		var idBuf [8]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, err
		}
		from := binary.LittleEndian.Uint64(idBuf[:])
		relType, err := readString(r)
		if err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, err
		}
		to := binary.LittleEndian.Uint64(idBuf[:])
		var confBuf [4]byte
		if _, err := io.ReadFull(r, confBuf[:]); err != nil {
			return nil, err
		}
		confFP := bitsToConfidence(binary.LittleEndian.Uint32(confBuf[:]))
		attrs, err := readAttrs(r)
		if err != nil {
			return nil, err
		}
		if err := pdb.AddRelation(&RelationEdge{From: from, RelType: relType, To: to, ConfidenceFP: confFP, Attrs: attrs}); err != nil {
			return nil, fmt.Errorf("axiograph: decode relation: %w", err)
		}
	}

	return pdb, nil
}
