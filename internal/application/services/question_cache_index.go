package services

import (
	"bytes"
	"container/list"
	"encoding/json"
	"fmt"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
)

// recencyIndex keeps question records ordered oldest -> newest by timestamp,
// with insertion order breaking ties. Records normally arrive with the
// current time, so an insert touches only the tail of the list.
type recencyIndex struct {
	order *list.List
	byID  map[string]*list.Element
}

func newRecencyIndex() *recencyIndex {
	return &recencyIndex{order: list.New(), byID: make(map[string]*list.Element)}
}

func (x *recencyIndex) Len() int { return x.order.Len() }

func (x *recencyIndex) Get(id string) (*cache.QuestionRecord, bool) {
	e, ok := x.byID[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*cache.QuestionRecord), true
}

// Upsert inserts rec, replacing any record with the same id.
func (x *recencyIndex) Upsert(rec *cache.QuestionRecord) {
	if e, ok := x.byID[rec.QuestionID]; ok {
		x.order.Remove(e)
	}
	at := x.order.Back()
	for at != nil && at.Value.(*cache.QuestionRecord).Timestamp.After(rec.Timestamp) {
		at = at.Prev()
	}
	if at == nil {
		x.byID[rec.QuestionID] = x.order.PushFront(rec)
		return
	}
	x.byID[rec.QuestionID] = x.order.InsertAfter(rec, at)
}

// EvictOver removes the oldest records until at most max remain and returns
// the evicted ids.
func (x *recencyIndex) EvictOver(max int) []string {
	var evicted []string
	for x.order.Len() > max {
		e := x.order.Front()
		rec := x.order.Remove(e).(*cache.QuestionRecord)
		delete(x.byID, rec.QuestionID)
		evicted = append(evicted, rec.QuestionID)
	}
	return evicted
}

// Records returns the records oldest first.
func (x *recencyIndex) Records() []*cache.QuestionRecord {
	out := make([]*cache.QuestionRecord, 0, x.order.Len())
	for e := x.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*cache.QuestionRecord))
	}
	return out
}

// recordLog is the persisted form of the index: a JSON object keyed by
// question id whose members appear oldest first, so the tie-break order
// survives a reload.
type recordLog []*cache.QuestionRecord

func (l recordLog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(rec.QuestionID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *recordLog) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("question cache: expected object, got %v", tok)
	}
	var out recordLog
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("question cache: expected key, got %v", tok)
		}
		var rec cache.QuestionRecord
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("question cache: record %q: %w", id, err)
		}
		rec.QuestionID = id
		out = append(out, &rec)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}
