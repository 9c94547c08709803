package batch

import (
	"bytes"
	"io"
)

// Item is one top level entry of a Batch: a *Single or a *ChangeSet
type Item interface {
	writeTo(w *Writer) error
}

// Single is an operation sent on its own, outside of any changeset
type Single struct {
	Message   Message
	ContentID string
}

func (s *Single) writeTo(w *Writer) error {
	return w.WriteItem(s.Message, s.ContentID)
}

// ChangeSetMember is one write operation of a changeset
type ChangeSetMember struct {
	Message Message
	// ContentID labels the operation so later members of the same changeset
	// can reference it. Uniqueness is not checked.
	ContentID string
}

// ChangeSet is an ordered group of write operations that the service applies
// atomically. Its members share one nested boundary.
type ChangeSet struct {
	boundary string
	members  []ChangeSetMember
}

// NewChangeSet returns an empty changeset with a fresh boundary
func NewChangeSet() *ChangeSet {
	return &ChangeSet{boundary: NewChangeSetBoundary()}
}

// Boundary returns the nested boundary of the changeset
func (cs *ChangeSet) Boundary() string {
	return cs.boundary
}

// Add appends msg to the changeset, labelled with contentID when not empty
func (cs *ChangeSet) Add(msg Message, contentID string) *ChangeSet {
	cs.members = append(cs.members, ChangeSetMember{Message: msg, ContentID: contentID})
	return cs
}

// Members returns the members in the order they will be encoded
func (cs *ChangeSet) Members() []ChangeSetMember {
	return cs.members
}

// Len returns the number of members
func (cs *ChangeSet) Len() int {
	return len(cs.members)
}

func (cs *ChangeSet) writeTo(w *Writer) error {
	return w.WriteChangeSet(cs)
}

// Batch is an ordered list of items to send in a single exchange
type Batch struct {
	boundary string
	items    []Item
}

// New returns an empty batch with a fresh outer boundary
func New() *Batch {
	return &Batch{boundary: NewBatchBoundary()}
}

// Boundary returns the outer boundary the batch is encoded with
func (b *Batch) Boundary() string {
	return b.boundary
}

// ContentType returns the Content-Type to send the encoded batch with
func (b *Batch) ContentType() string {
	w := Writer{boundary: b.boundary}
	return w.ContentType()
}

// Add appends a single operation
func (b *Batch) Add(msg Message) *Batch {
	return b.AddWithContentID(msg, "")
}

// AddWithContentID appends a single operation labelled with contentID
func (b *Batch) AddWithContentID(msg Message, contentID string) *Batch {
	b.items = append(b.items, &Single{Message: msg, ContentID: contentID})
	return b
}

// AddChangeSet appends a new empty changeset and returns it for population
func (b *Batch) AddChangeSet() *ChangeSet {
	cs := NewChangeSet()
	b.items = append(b.items, cs)
	return cs
}

// Items returns the items in encoding order
func (b *Batch) Items() []Item {
	return b.items
}

// Len returns the number of decoded items the batch is expected to produce,
// counting each changeset member separately
func (b *Batch) Len() int {
	n := 0
	for _, item := range b.items {
		if cs, ok := item.(*ChangeSet); ok {
			n += cs.Len()
			continue
		}
		n++
	}
	return n
}

// WriteTo encodes the whole batch to w
func (b *Batch) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := NewWriter(cw)
	if err := bw.SetBoundary(b.boundary); err != nil {
		return 0, err
	}
	for _, item := range b.items {
		if err := item.writeTo(bw); err != nil {
			return cw.n, err
		}
	}
	err := bw.Close()
	return cw.n, err
}

// Encode returns the encoded batch
func (b *Batch) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
