// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docpipe/core"
)

// Field serializers shared by the record codecs below.
var (
	metadataMUS = ord.NewMapSer[string, string](ord.String, ord.String)
	vectorMUS   = ord.NewSliceSer[float32](raw.Float32)
)

// JobMUS is the MUS serializer for Job. Fields are written in declaration
// order; times are varint Unix microseconds in UTC.
var JobMUS = jobMUS{}

type jobMUS struct{}

func (s jobMUS) Marshal(v Job, bs []byte) (n int) {
	n = ord.String.Marshal(v.DocumentID, bs)
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += ord.String.Marshal(v.Owner, bs[n:])
	n += metadataMUS.Marshal(v.Metadata, bs[n:])
	n += ord.String.Marshal(string(v.Stage), bs[n:])
	n += varint.Int.Marshal(v.Progress, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += varint.Int64.Marshal(v.CreatedAt.UnixMicro(), bs[n:])
	return n + varint.Int64.Marshal(v.UpdatedAt.UnixMicro(), bs[n:])
}

func (s jobMUS) Unmarshal(bs []byte) (v Job, n int, err error) {
	v.DocumentID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Owner, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var str string
	str, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Stage = core.Stage(str)
	v.Progress, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	str, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = core.Status(str)
	v.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt = time.UnixMicro(micros).UTC()
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(micros).UTC()
	if len(v.Metadata) == 0 {
		v.Metadata = nil
	}
	return
}

func (s jobMUS) Size(v Job) (size int) {
	size = ord.String.Size(v.DocumentID)
	size += ord.String.Size(v.Filename)
	size += ord.String.Size(v.Owner)
	size += metadataMUS.Size(v.Metadata)
	size += ord.String.Size(string(v.Stage))
	size += varint.Int.Size(v.Progress)
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.Error)
	size += varint.Int.Size(v.ChunkCount)
	size += varint.Int64.Size(v.CreatedAt.UnixMicro())
	return size + varint.Int64.Size(v.UpdatedAt.UnixMicro())
}

func (s jobMUS) Skip(bs []byte) (n int, err error) {
	skips := []func([]byte) (int, error){
		ord.String.Skip, ord.String.Skip, ord.String.Skip, metadataMUS.Skip,
		ord.String.Skip, varint.Int.Skip, ord.String.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int64.Skip, varint.Int64.Skip,
	}
	return skipAll(bs, skips)
}

// StoredChunkMUS is the MUS serializer for StoredChunk. Vector components
// are fixed-width float32.
var StoredChunkMUS = storedChunkMUS{}

type storedChunkMUS struct{}

func (s storedChunkMUS) Marshal(v StoredChunk, bs []byte) (n int) {
	n = ord.String.Marshal(v.DocumentID, bs)
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += raw.Uint64.Marshal(uint64(v.ChunkID), bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	return n + metadataMUS.Marshal(v.Metadata, bs[n:])
}

func (s storedChunkMUS) Unmarshal(bs []byte) (v StoredChunk, n int, err error) {
	v.DocumentID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var id uint64
	id, n1, err = raw.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkID = core.ID(id)
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if len(v.Vector) == 0 {
		v.Vector = nil
	}
	if len(v.Metadata) == 0 {
		v.Metadata = nil
	}
	return
}

func (s storedChunkMUS) Size(v StoredChunk) (size int) {
	size = ord.String.Size(v.DocumentID)
	size += ord.String.Size(v.Filename)
	size += varint.Int.Size(v.Index)
	size += raw.Uint64.Size(uint64(v.ChunkID))
	size += ord.String.Size(v.Text)
	size += vectorMUS.Size(v.Vector)
	return size + metadataMUS.Size(v.Metadata)
}

func (s storedChunkMUS) Skip(bs []byte) (n int, err error) {
	skips := []func([]byte) (int, error){
		ord.String.Skip, ord.String.Skip, varint.Int.Skip, raw.Uint64.Skip,
		ord.String.Skip, vectorMUS.Skip, metadataMUS.Skip,
	}
	return skipAll(bs, skips)
}

func skipAll(bs []byte, skips []func([]byte) (int, error)) (n int, err error) {
	for _, skip := range skips {
		var n1 int
		n1, err = skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}
