package oplog

import (
	"encoding/binary"
	"errors"

	"github.com/drpcorg/jdoc/rdx"
	"github.com/learn-decentralized-systems/toytlv"
)

/*
An op is one P record holding, in order:

	I  stamp, 16 bytes
	A  action, 1 byte
	O  target object, 16 bytes
	K  map key | N index (varint)
	E  present if insert
	V  value record (Set, Inc)
	C  child object, 16 bytes (make actions)
*/

var ErrBadOpRecord = errors.New("bad op record")

func Encode(op Op) ([]byte, error) {
	if !op.Action.Valid() {
		return nil, ErrBadOpRecord
	}
	body := toytlv.Concat(
		toytlv.Record('I', op.ID.Bytes()),
		toytlv.Record('A', []byte{byte(op.Action)}),
		toytlv.Record('O', op.Obj.Bytes()),
	)
	if op.Key.IsIndex() {
		body = append(body, toytlv.Record('N', binary.AppendUvarint(nil, uint64(op.Key.Index())))...)
	} else {
		body = append(body, toytlv.Record('K', []byte(op.Key.Name()))...)
	}
	if op.Insert {
		body = append(body, toytlv.Record('E', nil)...)
	}
	if op.Value != nil {
		val, err := rdx.ValueTLV(op.Value)
		if err != nil {
			return nil, err
		}
		body = append(body, toytlv.Record('V', val)...)
	}
	if op.Action.IsMake() {
		body = append(body, toytlv.Record('C', op.Child.Bytes())...)
	}
	return toytlv.Record('P', body), nil
}

func Decode(rec []byte) (op Op, err error) {
	body, rest, err := toytlv.TakeWary('P', rec)
	if err != nil {
		return op, err
	}
	if len(rest) != 0 {
		return op, ErrBadOpRecord
	}
	for len(body) > 0 {
		lit, hlen, blen := toytlv.ProbeHeader(body)
		if lit == 0 || lit == '-' || hlen+blen > len(body) {
			return op, ErrBadOpRecord
		}
		field := body[hlen : hlen+blen]
		body = body[hlen+blen:]
		ok := true
		switch lit {
		case 'I':
			op.ID = rdx.IDFromBytes(field)
			ok = op.ID != rdx.BadId
		case 'A':
			ok = len(field) == 1 && Action(field[0]).Valid()
			if ok {
				op.Action = Action(field[0])
			}
		case 'O':
			op.Obj, ok = rdx.ObjectIDFromBytes(field)
		case 'K':
			op.Key = MapKey(string(field))
		case 'N':
			n, l := binary.Uvarint(field)
			ok = l > 0
			op.Key = IndexKey(int(n))
		case 'E':
			op.Insert = true
		case 'V':
			op.Value, _, err = rdx.ValueFromTLV(field)
			if err != nil {
				return op, err
			}
		case 'C':
			op.Child, ok = rdx.ObjectIDFromBytes(field)
		default:
			ok = false
		}
		if !ok {
			return op, ErrBadOpRecord
		}
	}
	if op.Action == 0 {
		return op, ErrBadOpRecord
	}
	return op, nil
}
