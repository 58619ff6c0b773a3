package index

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

const (
	indexSignature = "DIRC"

	flagAssumeValid = 0x8000
	flagExtended    = 0x4000
	flagStageShift  = 12
	flagStageMask   = 0x3000
	flagNameMask    = 0x0fff

	extIntentToAdd  = 0x2000
	extSkipWorktree = 0x4000

	// stat fields: ctime, mtime (sec+nsec each), dev, ino, mode, uid,
	// gid, size.
	statSize = 40
)

// encode serializes entries in DIRC format. Version 3 is used only when an
// entry needs extended flags. It returns the file bytes and the trailing
// checksum.
func encode(algo object.HashAlgorithm, entries []Entry) ([]byte, []byte) {
	version := uint32(2)
	for i := range entries {
		if entries[i].extended() {
			version = 3
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString(indexSignature)
	binary.Write(&buf, binary.BigEndian, version)
	binary.Write(&buf, binary.BigEndian, uint32(len(entries)))

	for i := range entries {
		e := &entries[i]
		start := buf.Len()

		var stat [statSize]byte
		putTime(stat[0:8], e.CTime)
		putTime(stat[8:16], e.MTime)
		binary.BigEndian.PutUint32(stat[16:], e.Dev)
		binary.BigEndian.PutUint32(stat[20:], e.Ino)
		binary.BigEndian.PutUint32(stat[24:], uint32(e.Mode))
		binary.BigEndian.PutUint32(stat[28:], e.UID)
		binary.BigEndian.PutUint32(stat[32:], e.GID)
		binary.BigEndian.PutUint32(stat[36:], e.Size)
		buf.Write(stat[:])
		buf.Write(e.Hash.Bytes())

		nameLen := len(e.Path)
		if nameLen > flagNameMask {
			nameLen = flagNameMask
		}
		flags := uint16(nameLen) | uint16(e.Stage)<<flagStageShift
		if e.AssumeValid {
			flags |= flagAssumeValid
		}
		if e.extended() {
			flags |= flagExtended
		}
		binary.Write(&buf, binary.BigEndian, flags)
		if e.extended() {
			var ext uint16
			if e.IntentToAdd {
				ext |= extIntentToAdd
			}
			if e.SkipWorktree {
				ext |= extSkipWorktree
			}
			binary.Write(&buf, binary.BigEndian, ext)
		}

		buf.WriteString(e.Path)
		size := buf.Len() - start
		buf.Write(make([]byte, paddedSize(size)-size))
	}

	sum := algo.Sum(buf.Bytes())
	buf.Write(sum)
	return buf.Bytes(), sum
}

// paddedSize rounds n up to the next multiple of 8 leaving at least one
// NUL terminator.
func paddedSize(n int) int { return (n + 8) &^ 7 }

func putTime(b []byte, t time.Time) {
	if t.IsZero() {
		return
	}
	binary.BigEndian.PutUint32(b[0:], uint32(t.Unix()))
	binary.BigEndian.PutUint32(b[4:], uint32(t.Nanosecond()))
}

func getTime(b []byte) time.Time {
	sec := binary.BigEndian.Uint32(b[0:])
	nsec := binary.BigEndian.Uint32(b[4:])
	if sec == 0 && nsec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(nsec))
}

func corrupt(format string, args ...any) error {
	return giterr.Newf("decode index", "", giterr.ErrCorruption, format, args...)
}

// decode parses DIRC data, verifying the checksum, entry order and
// extension framing. Optional extensions (uppercase signature) are
// skipped.
func decode(algo object.HashAlgorithm, data []byte) ([]Entry, []byte, error) {
	hashSize := algo.Size()
	if len(data) < 12+hashSize {
		return nil, nil, corrupt("file too short")
	}
	body, sum := data[:len(data)-hashSize], data[len(data)-hashSize:]
	if !bytes.Equal(algo.Sum(body), sum) {
		return nil, nil, corrupt("checksum mismatch")
	}
	if string(body[:4]) != indexSignature {
		return nil, nil, corrupt("bad signature %q", body[:4])
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != 2 && version != 3 {
		return nil, nil, corrupt("unsupported version %d", version)
	}
	count := binary.BigEndian.Uint32(body[8:12])

	entries := make([]Entry, 0, min(int(count), len(body)/statSize))
	pos := 12
	for i := uint32(0); i < count; i++ {
		start := pos
		if pos+statSize+hashSize+2 > len(body) {
			return nil, nil, corrupt("entry %d truncated", i)
		}
		stat := body[pos : pos+statSize]
		e := Entry{
			CTime: getTime(stat[0:8]),
			MTime: getTime(stat[8:16]),
			Dev:   binary.BigEndian.Uint32(stat[16:]),
			Ino:   binary.BigEndian.Uint32(stat[20:]),
			Mode:  object.FileMode(binary.BigEndian.Uint32(stat[24:])),
			UID:   binary.BigEndian.Uint32(stat[28:]),
			GID:   binary.BigEndian.Uint32(stat[32:]),
			Size:  binary.BigEndian.Uint32(stat[36:]),
		}
		pos += statSize
		h, err := object.HashFromBytes(body[pos : pos+hashSize])
		if err != nil {
			return nil, nil, corrupt("entry %d: bad id", i)
		}
		e.Hash = h
		pos += hashSize

		flags := binary.BigEndian.Uint16(body[pos:])
		pos += 2
		e.AssumeValid = flags&flagAssumeValid != 0
		e.Stage = Stage((flags & flagStageMask) >> flagStageShift)
		if flags&flagExtended != 0 {
			if version < 3 {
				return nil, nil, corrupt("entry %d: extended flags in version %d", i, version)
			}
			if pos+2 > len(body) {
				return nil, nil, corrupt("entry %d truncated", i)
			}
			ext := binary.BigEndian.Uint16(body[pos:])
			pos += 2
			e.IntentToAdd = ext&extIntentToAdd != 0
			e.SkipWorktree = ext&extSkipWorktree != 0
		}

		nameLen := int(flags & flagNameMask)
		if nameLen == flagNameMask {
			nul := bytes.IndexByte(body[pos:], 0)
			if nul < 0 {
				return nil, nil, corrupt("entry %d: unterminated name", i)
			}
			nameLen = nul
		}
		if pos+nameLen >= len(body) || body[pos+nameLen] != 0 {
			return nil, nil, corrupt("entry %d: bad name", i)
		}
		e.Path = string(body[pos : pos+nameLen])
		pos = start + paddedSize(pos+nameLen-start)
		if pos > len(body) {
			return nil, nil, corrupt("entry %d: padding truncated", i)
		}

		if !e.Mode.IsValid() || e.Mode == object.ModeTree {
			return nil, nil, corrupt("entry %q: bad mode %o", e.Path, uint32(e.Mode))
		}
		if len(entries) > 0 && !entryLess(&entries[len(entries)-1], &e) {
			return nil, nil, corrupt("entry %q out of order", e.Path)
		}
		entries = append(entries, e)
	}

	for pos < len(body) {
		if pos+8 > len(body) {
			return nil, nil, corrupt("extension header truncated")
		}
		sig := body[pos : pos+4]
		size := int(binary.BigEndian.Uint32(body[pos+4:]))
		pos += 8
		if size < 0 || pos+size > len(body) {
			return nil, nil, corrupt("extension %q truncated", sig)
		}
		if sig[0] < 'A' || sig[0] > 'Z' {
			return nil, nil, corrupt("unsupported required extension %q", sig)
		}
		pos += size
	}
	return entries, sum, nil
}
