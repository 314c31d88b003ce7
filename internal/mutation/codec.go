package mutation

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/nodesync/internal/ir"
)

// WireVersion is the msgpack script envelope version.
const WireVersion = 1

type wireScript struct {
	Version int      `msgpack:"v"`
	Ops     []wireOp `msgpack:"ops"`
}

// wireOp is the flat msgpack row of one op. Value holds the JSON encoding
// of an ir.Value; Any values survive only as their type name.
type wireOp struct {
	Op    string  `msgpack:"op"`
	ID    uint32  `msgpack:"id,omitempty"`
	Name  string  `msgpack:"name,omitempty"`
	Index int     `msgpack:"idx,omitempty"`
	Path  []uint8 `msgpack:"path,omitempty"`
	M     int     `msgpack:"m,omitempty"`
	Value []byte  `msgpack:"value,omitempty"`
}

// EncodeScript serializes a script for the journal.
func EncodeScript(s Script) ([]byte, error) {
	env := wireScript{Version: WireVersion, Ops: make([]wireOp, len(s))}
	for i, o := range s {
		w, err := toWire(o)
		if err != nil {
			return nil, fmt.Errorf("encode op %d: %w", i, err)
		}
		env.Ops[i] = w
	}
	return msgpack.Marshal(env)
}

// DecodeScript parses a script produced by EncodeScript.
func DecodeScript(data []byte) (Script, error) {
	var env wireScript
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if env.Version != WireVersion {
		return nil, fmt.Errorf("decode script: unsupported wire version %d", env.Version)
	}
	s := make(Script, len(env.Ops))
	for i, w := range env.Ops {
		o, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("decode op %d: %w", i, err)
		}
		s[i] = o
	}
	return s, nil
}

func toWire(o Op) (wireOp, error) {
	w := wireOp{Op: string(o.Kind())}
	switch v := o.(type) {
	case CreatePlaceholder:
		w.ID = uint32(v.ID)
	case LoadTemplate:
		w.Name, w.Index, w.ID = v.Name, v.Index, uint32(v.ID)
	case AssignID:
		w.Path, w.ID = v.Path, uint32(v.ID)
	case AppendChildren:
		w.ID, w.M = uint32(v.ID), v.M
	case ReplaceWith:
		w.ID, w.M = uint32(v.ID), v.M
	case ReplacePlaceholder:
		w.Path, w.M = v.Path, v.M
	case InsertAfter:
		w.ID, w.M = uint32(v.ID), v.M
	case InsertBefore:
		w.ID, w.M = uint32(v.ID), v.M
	case SetAttribute:
		data, err := ir.MarshalValue(valueOrNone(v.Value))
		if err != nil {
			return wireOp{}, err
		}
		w.ID, w.Name, w.Value = uint32(v.ID), v.Name, data
	case RemoveNode:
		w.ID = uint32(v.ID)
	case PushRoot:
		w.ID = uint32(v.ID)
	}
	return w, nil
}

func fromWire(w wireOp) (Op, error) {
	id := ir.ElementID(w.ID)
	switch Kind(w.Op) {
	case KindCreatePlaceholder:
		return CreatePlaceholder{ID: id}, nil
	case KindLoadTemplate:
		return LoadTemplate{Name: w.Name, Index: w.Index, ID: id}, nil
	case KindAssignID:
		return AssignID{Path: w.Path, ID: id}, nil
	case KindAppendChildren:
		return AppendChildren{ID: id, M: w.M}, nil
	case KindReplaceWith:
		return ReplaceWith{ID: id, M: w.M}, nil
	case KindReplacePlaceholder:
		return ReplacePlaceholder{Path: w.Path, M: w.M}, nil
	case KindInsertAfter:
		return InsertAfter{ID: id, M: w.M}, nil
	case KindInsertBefore:
		return InsertBefore{ID: id, M: w.M}, nil
	case KindSetAttribute:
		var v ir.Value = ir.None{}
		if len(w.Value) > 0 {
			decoded, err := ir.UnmarshalValue(w.Value)
			if err != nil {
				return nil, fmt.Errorf("SetAttribute value: %w", err)
			}
			v = decoded
		}
		return SetAttribute{ID: id, Name: w.Name, Value: v}, nil
	case KindRemoveNode:
		return RemoveNode{ID: id}, nil
	case KindPushRoot:
		return PushRoot{ID: id}, nil
	default:
		return nil, &ContractViolation{
			Code:    ErrCodeUnsupportedOp,
			Message: fmt.Sprintf("op %q is not part of the vocabulary", w.Op),
		}
	}
}
