package queue

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Message record layout:
//
//	[1B version][4B headerLen BE][header JSON attrs][payload][4B crc32c]
//
// The crc covers everything before it. Header holds the attribute map so
// redelivery keeps attributes without a second lookup.

const recordVersion = 1

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(attrs map[string]string, payload []byte) ([]byte, error) {
	header, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+4+len(header)+len(payload)+4)
	out = append(out, recordVersion)
	var hl [4]byte
	binary.BigEndian.PutUint32(hl[:], uint32(len(header)))
	out = append(out, hl[:]...)
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Checksum(out, castagnoli)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...), nil
}

func decodeRecord(b []byte) (attrs map[string]string, payload []byte, ok bool) {
	if len(b) < 1+4+4 || b[0] != recordVersion {
		return nil, nil, false
	}
	hl := binary.BigEndian.Uint32(b[1:5])
	headerEnd := 5 + int(hl)
	if headerEnd+4 > len(b) {
		return nil, nil, false
	}
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(b[:len(b)-4], castagnoli) != expect {
		return nil, nil, false
	}
	if err := json.Unmarshal(b[1+4:headerEnd], &attrs); err != nil {
		return nil, nil, false
	}
	payload = append([]byte(nil), b[headerEnd:len(b)-4]...)
	return attrs, payload, true
}
