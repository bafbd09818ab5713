package journal

import "encoding/binary"

// headerMagic is the fixed magic value identifying a valid journal header.
const headerMagic uint64 = 0xCAFECAFECAFECAFE

// headerSize is the fixed on-disk size of a journal header, in bytes:
// magic, mtime_sec, mtime_nsec, filesize, and four reserved u64 zero slots.
const headerSize = 64

// fragmentHeaderSize is the on-disk size of one fragment's (offset, size)
// prefix, preceding its payload bytes.
const fragmentHeaderSize = 16

// header is the fixed 64-byte journal header.
type header struct {
	Magic      uint64
	MtimeSec   uint64
	MtimeNsec  uint64
	Filesize   uint64
	_reserved0 uint64
	_reserved1 uint64
	_reserved2 uint64
	_reserved3 uint64
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint64(buf[8:16], h.MtimeSec)
	binary.LittleEndian.PutUint64(buf[16:24], h.MtimeNsec)
	binary.LittleEndian.PutUint64(buf[24:32], h.Filesize)
	// bytes[32:64] stay zero (reserved).
	return buf
}

func decodeHeader(buf []byte) header {
	return header{
		Magic:     binary.LittleEndian.Uint64(buf[0:8]),
		MtimeSec:  binary.LittleEndian.Uint64(buf[8:16]),
		MtimeNsec: binary.LittleEndian.Uint64(buf[16:24]),
		Filesize:  binary.LittleEndian.Uint64(buf[24:32]),
	}
}

func encodeFragmentHeader(offset, size uint64) []byte {
	buf := make([]byte, fragmentHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], offset)
	binary.LittleEndian.PutUint64(buf[8:16], size)
	return buf
}

func decodeFragmentHeader(buf []byte) (offset, size uint64) {
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])
}
