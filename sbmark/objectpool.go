package sbmark

import (
	"bufio"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ObjectPool is the read-only list of objects the GET mode picks from.
// The file format is a JSON array of [bucket, key] pairs.
type ObjectPool struct {
	refs []ObjectRef
}

func NewObjectPool(refs []ObjectRef) *ObjectPool {
	return &ObjectPool{refs: append([]ObjectRef(nil), refs...)}
}

func LoadObjectPool(path string) (*ObjectPool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "open object pool: %v", err)
	}
	defer f.Close()
	pool, err := ReadObjectPool(bufio.NewReader(f))
	if err != nil {
		return nil, errors.WithMessagef(err, "object pool %s", path)
	}
	return pool, nil
}

// ReadObjectPool streams the array so that pools with millions of entries
// don't need an intermediate [][]string.
func ReadObjectPool(r io.Reader) (*ObjectPool, error) {
	iter := jsoniter.Parse(json, r, 64*1024)
	if iter.WhatIsNext() != jsoniter.ArrayValue {
		return nil, configErrorf("object pool must be a JSON array")
	}

	var refs []ObjectRef
	index := 0
	for iter.ReadArray() {
		var pair []string
		iter.ReadVal(&pair)
		if iter.Error != nil {
			break
		}
		if len(pair) != 2 {
			return nil, configErrorf("entry %d has %d elements, expected [bucket, key]", index, len(pair))
		}
		if pair[0] == "" || pair[1] == "" {
			return nil, configErrorf("entry %d has an empty bucket or key", index)
		}
		refs = append(refs, ObjectRef{Bucket: pair[0], Key: pair[1]})
		index++
	}
	if iter.Error != nil {
		return nil, errors.Wrapf(ErrConfiguration, "decode entry %d: %v", index, iter.Error)
	}
	return &ObjectPool{refs: refs}, nil
}

func WriteObjectPool(w io.Writer, refs []ObjectRef) error {
	stream := jsoniter.NewStream(json, w, 64*1024)
	stream.WriteArrayStart()
	for i, ref := range refs {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteArrayStart()
		stream.WriteString(ref.Bucket)
		stream.WriteMore()
		stream.WriteString(ref.Key)
		stream.WriteArrayEnd()
	}
	stream.WriteArrayEnd()
	stream.WriteRaw("\n")
	if stream.Error != nil {
		return stream.Error
	}
	return stream.Flush()
}

func (p *ObjectPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.refs)
}

func (p *ObjectPool) At(i int) ObjectRef {
	return p.refs[i]
}

// Random picks an entry with pick(n), which must return a value in [0, n).
// The pool must not be empty.
func (p *ObjectPool) Random(pick func(n int) int) ObjectRef {
	return p.refs[pick(len(p.refs))]
}
