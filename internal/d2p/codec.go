package d2p

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

type indexRecord struct {
	name       string
	dataOffset int32
	size       int32
}

// Extract reads a .d2p archive and returns its member bodies keyed by name,
// plus the archive's properties and member ordering.
func Extract(path string) (map[string][]byte, Meta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, errors.Wrap(ErrNotFound, err.Error())
	}
	return ExtractBytes(raw)
}

// ExtractBytes is Extract over an in-memory buffer; Extract reads the file
// and delegates here, and the tests call it directly.
func ExtractBytes(raw []byte) (map[string][]byte, Meta, error) {
	if len(raw) < headerSize+trailerSize {
		return nil, Meta{}, ErrNotFound
	}

	major, minor := raw[0], raw[1]
	if major != majorVersion || minor != minorVersion {
		return nil, Meta{}, ErrWrongVersion
	}

	trailer := raw[len(raw)-trailerSize:]
	r := bytes.NewReader(trailer)
	var dataOffset, dataCount, indexOffset, indexCount, propertiesOffset, propertiesCount int32
	for _, field := range []*int32{&dataOffset, &dataCount, &indexOffset, &indexCount, &propertiesOffset, &propertiesCount} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading trailer")
		}
	}
	_ = dataCount

	if int(indexOffset) < 0 || int(indexOffset) > len(raw) {
		return nil, Meta{}, ErrNotFound
	}

	indexReader := bytes.NewReader(raw[indexOffset:])
	records := make([]indexRecord, 0, indexCount)
	for i := int32(0); i < indexCount; i++ {
		name, err := readUTF(indexReader)
		if err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading index name")
		}
		var off, size int32
		if err := binary.Read(indexReader, binary.BigEndian, &off); err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading index offset")
		}
		if err := binary.Read(indexReader, binary.BigEndian, &size); err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading index size")
		}
		records = append(records, indexRecord{name: name, dataOffset: off, size: size})
	}

	if int(propertiesOffset) < 0 || int(propertiesOffset) > len(raw) {
		return nil, Meta{}, ErrNotFound
	}
	propReader := bytes.NewReader(raw[propertiesOffset:])
	properties := make([]Property, 0, propertiesCount)
	for i := int32(0); i < propertiesCount; i++ {
		key, err := readUTF(propReader)
		if err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading property key")
		}
		value, err := readUTF(propReader)
		if err != nil {
			return nil, Meta{}, errors.Wrap(ErrNotFound, "reading property value")
		}
		properties = append(properties, Property{Key: key, Value: value})
	}

	files := make(map[string][]byte, len(records))
	names := make([]string, 0, len(records))
	for _, rec := range records {
		start := int(dataOffset) + int(rec.dataOffset)
		end := start + int(rec.size)
		if start < 0 || end > len(raw) || start > end {
			return nil, Meta{}, ErrNotFound
		}
		body := make([]byte, rec.size)
		copy(body, raw[start:end])
		files[rec.name] = body
		names = append(names, rec.name)
	}

	return files, Meta{Properties: properties, Files: names}, nil
}

// Build writes a .d2p archive to path from an ordered list of entries and
// the archive's properties, recomputing all offsets.
func Build(path string, entries []Entry, properties []Property) error {
	raw, err := BuildBytes(entries, properties)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// BuildBytes is Build without the filesystem write, used by the archive
// patching action, which writes the re-emitted body to a temp file and
// renames it over the archive itself.
func BuildBytes(entries []Entry, properties []Property) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte(majorVersion)
	buf.WriteByte(minorVersion)

	offsets := make([]int32, len(entries))
	var running int32
	for i, e := range entries {
		offsets[i] = running
		buf.Write(e.Data)
		running += int32(len(e.Data))
	}

	indexOffset := int32(buf.Len())
	for i, e := range entries {
		if err := writeUTF(buf, e.Name); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.BigEndian, offsets[i]); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.BigEndian, int32(len(e.Data))); err != nil {
			return nil, err
		}
	}

	propertiesOffset := int32(buf.Len())
	for _, p := range properties {
		if err := writeUTF(buf, p.Key); err != nil {
			return nil, err
		}
		if err := writeUTF(buf, p.Value); err != nil {
			return nil, err
		}
	}

	trailer := []int32{headerSize, int32(len(entries)), indexOffset, int32(len(entries)), propertiesOffset, int32(len(properties))}
	for _, field := range trailer {
		if err := binary.Write(buf, binary.BigEndian, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func readUTF(r *bytes.Reader) (string, error) {
	var length int16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length < 0 || int(length) > r.Len() {
		return "", errors.New("d2p: invalid UTF length prefix")
	}
	b := make([]byte, length)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUTF(buf *bytes.Buffer, s string) error {
	if len(s) > (1<<15)-1 {
		return errors.New("d2p: UTF string too long for 16-bit length prefix")
	}
	if err := binary.Write(buf, binary.BigEndian, int16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}
