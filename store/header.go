package store

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"

	"eonstore/epoch"
	"eonstore/mvcc"
)

// Trimmed from the teacher's pkg/dbfile header: no page grid, schema
// cookie or vacuum bookkeeping, since C8 has no pages and no schema —
// just one versioned directory anchored at a fixed offset.
const (
	HeaderSize = 64

	magicString  = "EonStore fmt1\x00\x00\x00" // 16 bytes
	formatVersion = 1
)

const (
	offsetMagic          = 0  // 16 bytes
	offsetFormatVersion  = 16 // 4 bytes
	offsetInstanceID     = 20 // 16 bytes
	offsetRootOffset     = 36 // 8 bytes
	offsetRootSize       = 44 // 8 bytes
	offsetAllocHighWater = 52 // 8 bytes
	// 60-63 reserved
)

var (
	ErrInvalidMagic   = errors.New("store: invalid magic string, not an eonstore file")
	ErrHeaderTooShort = errors.New("store: header data too short")
)

// Header is the file's fixed 64-byte preamble (C8): identity, the
// directory's current on-disk offset/size, and the allocator's
// high-water mark (so Open can resume bumping past whatever Create/the
// previous session last allocated without rescanning the file).
type Header struct {
	FormatVersion  uint32
	InstanceID     uuid.UUID
	RootOffset     uint64
	RootSize       uint64
	AllocHighWater uint64
}

// NewHeader returns a fresh header for a brand-new file, with no
// directory committed yet (RootOffset/RootSize are filled in once the
// bootstrap transaction in NewManager commits).
func NewHeader() *Header {
	return &Header{
		FormatVersion: formatVersion,
		InstanceID:    uuid.New(),
		AllocHighWater: HeaderSize,
	}
}

func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	copy(data[offsetMagic:], magicString)
	binary.LittleEndian.PutUint32(data[offsetFormatVersion:], h.FormatVersion)
	idBytes, _ := h.InstanceID.MarshalBinary()
	copy(data[offsetInstanceID:offsetInstanceID+16], idBytes)
	binary.LittleEndian.PutUint64(data[offsetRootOffset:], h.RootOffset)
	binary.LittleEndian.PutUint64(data[offsetRootSize:], h.RootSize)
	binary.LittleEndian.PutUint64(data[offsetAllocHighWater:], h.AllocHighWater)
	return data
}

func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrHeaderTooShort
	}
	if string(data[offsetMagic:offsetMagic+16]) != magicString {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(data[offsetFormatVersion:])
	if version != formatVersion {
		return nil, mvcc.ErrBadFormatVersion
	}
	id, err := uuid.FromBytes(data[offsetInstanceID : offsetInstanceID+16])
	if err != nil {
		return nil, ErrInvalidMagic
	}
	return &Header{
		FormatVersion:  version,
		InstanceID:     id,
		RootOffset:     binary.LittleEndian.Uint64(data[offsetRootOffset:]),
		RootSize:       binary.LittleEndian.Uint64(data[offsetRootSize:]),
		AllocHighWater: binary.LittleEndian.Uint64(data[offsetAllocHighWater:]),
	}, nil
}

// headerHost implements mvcc.PersistentHost for the root Manager's own
// directory object: there is no containing directory to record its
// offset, so it's written directly into the fixed header region of the
// mapped file instead. Touch is a no-op — the header isn't itself a
// versioned participant, just a plain word this writes through.
type headerHost struct {
	file  *mappedFile
	alloc *BumpAllocator
}

func (h headerHost) Touch(sbox *mvcc.Sandbox, atEpoch epoch.Epoch) {}

func (h headerHost) SetVersion(sbox *mvcc.Sandbox, atEpoch epoch.Epoch, offset uint64, size int, present bool) (oldOffset uint64, oldSize int, hadOld bool) {
	hdr, err := DecodeHeader(h.file.Data()[:HeaderSize])
	if err != nil {
		hdr = NewHeader()
	}
	oldOffset, oldSize, hadOld = hdr.RootOffset, int(hdr.RootSize), hdr.RootSize > 0 || hdr.RootOffset != 0
	if present {
		hdr.RootOffset = offset
		hdr.RootSize = uint64(size)
	} else {
		hdr.RootOffset = 0
		hdr.RootSize = 0
	}
	if h.alloc != nil {
		used, _ := h.alloc.Stats()
		hdr.AllocHighWater = used
	}
	copy(h.file.Data()[:HeaderSize], hdr.Encode())
	return oldOffset, oldSize, hadOld
}
