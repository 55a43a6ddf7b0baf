package replication

// Mapper rewrites the catalog and messages between source and destination. Implementations
// must not keep state between calls.
type Mapper interface {
	MapCatalog(catalog Catalog) Catalog
	MapMessage(msg *Message) *Message
}

// NamespaceMapper renames streams on their way to the destination: it prepends a prefix to
// stream names and optionally forces a destination namespace.
type NamespaceMapper struct {
	Prefix    string
	Namespace string
}

// NewNamespaceMapper creates a mapper. An empty prefix and namespace leave streams unchanged.
func NewNamespaceMapper(prefix, namespace string) *NamespaceMapper {
	return &NamespaceMapper{Prefix: prefix, Namespace: namespace}
}

func (m *NamespaceMapper) mapStream(s StreamDescriptor) StreamDescriptor {
	out := StreamDescriptor{Name: m.Prefix + s.Name, Namespace: s.Namespace}
	if m.Namespace != "" {
		out.Namespace = m.Namespace
	}
	return out
}

// MapCatalog returns a copy of the catalog with every stream renamed
func (m *NamespaceMapper) MapCatalog(catalog Catalog) Catalog {
	out := Catalog{Streams: make([]ConfiguredStream, 0, len(catalog.Streams))}
	for _, s := range catalog.Streams {
		mapped := s
		mapped.Stream = m.mapStream(s.Stream)
		out.Streams = append(out.Streams, mapped)
	}
	return out
}

// MapMessage returns a copy of msg with its stream renamed. The input is not modified.
func (m *NamespaceMapper) MapMessage(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	out := *msg
	switch msg.Type {
	case MessageTypeRecord:
		if msg.Record != nil {
			record := *msg.Record
			record.Stream = m.mapStream(record.Stream)
			out.Record = &record
		}
	case MessageTypeState:
		if msg.State != nil && msg.State.Stream != nil {
			st := *msg.State
			stream := m.mapStream(*st.Stream)
			st.Stream = &stream
			out.State = &st
		}
	case MessageTypeLog:
	}
	return &out
}
