package archive

import (
	"net/url"
	"path"
	"strings"
)

// MediaKind is a coarse classification of a media blob.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindOther MediaKind = "other"
)

// Blob is a single media file materialized from the archive.
type Blob struct {
	Path string // cleaned archive-relative path
	Name string // base name
	MIME string
	Kind MediaKind
	Data []byte
}

type mediaType struct {
	mime string
	kind MediaKind
}

// mediaTypes is the extension allow-list. Entries outside it are not
// record media and are never materialized.
var mediaTypes = map[string]mediaType{
	".jpg":  {"image/jpeg", KindImage},
	".jpeg": {"image/jpeg", KindImage},
	".png":  {"image/png", KindImage},
	".gif":  {"image/gif", KindImage},
	".webp": {"image/webp", KindImage},
	".heic": {"image/heic", KindImage},
	".bmp":  {"image/bmp", KindImage},
	".mp4":  {"video/mp4", KindVideo},
	".m4v":  {"video/mp4", KindVideo},
	".mov":  {"video/quicktime", KindVideo},
	".webm": {"video/webm", KindVideo},
	".mp3":  {"audio/mpeg", KindAudio},
	".m4a":  {"audio/mp4", KindAudio},
	".aac":  {"audio/aac", KindAudio},
	".ogg":  {"audio/ogg", KindAudio},
	".oga":  {"audio/ogg", KindAudio},
	".wav":  {"audio/wav", KindAudio},
	".pdf":  {"application/pdf", KindOther},
	".txt":  {"text/plain", KindOther},
	".vcf":  {"text/vcard", KindOther},
}

func mediaTypeFor(name string) (mediaType, bool) {
	mt, ok := mediaTypes[strings.ToLower(path.Ext(name))]
	return mt, ok
}

// TypeByPath reports the MIME type and kind implied by a file name's
// extension, for callers classifying references the archive may not hold.
func TypeByPath(name string) (mime string, kind MediaKind, ok bool) {
	mt, ok := mediaTypeFor(name)
	if !ok {
		return "", KindOther, false
	}
	return mt.mime, mt.kind, true
}

// KindOfMIME classifies a MIME string.
func KindOfMIME(mime string) MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindOther
	}
}

// MediaMap indexes blobs by several keys so document references can be
// resolved no matter how the export spells them. Resolution order:
//
//  1. exact archive path
//  2. path with the leading directory stripped on either side
//     ("linked_media/x.jpg" matches entry "x.jpg" and vice versa)
//  3. bare basename
//
// On key collisions the first blob in archive order wins; later blobs stay
// reachable through their full path.
type MediaMap struct {
	blobs  []*Blob
	byPath map[string]*Blob
	byTrim map[string]*Blob // entry path minus its first directory
	byName map[string]*Blob
}

func newMediaMap(blobs []*Blob) *MediaMap {
	m := &MediaMap{
		blobs:  blobs,
		byPath: make(map[string]*Blob, len(blobs)),
		byTrim: make(map[string]*Blob, len(blobs)),
		byName: make(map[string]*Blob, len(blobs)),
	}
	for _, b := range blobs {
		if _, ok := m.byPath[b.Path]; !ok {
			m.byPath[b.Path] = b
		}
		if trimmed := stripFirstDir(b.Path); trimmed != b.Path {
			if _, ok := m.byTrim[trimmed]; !ok {
				m.byTrim[trimmed] = b
			}
		}
		if _, ok := m.byName[b.Name]; !ok {
			m.byName[b.Name] = b
		}
	}
	return m
}

// stripFirstDir removes one leading directory component, if any.
func stripFirstDir(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// normalizeRef cleans a document-side media reference for lookup.
func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	// src attributes are often percent-encoded.
	if dec, err := url.PathUnescape(ref); err == nil {
		ref = dec
	}
	// Strip fragment/query noise from attribute values.
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	ref = strings.TrimPrefix(ref, "./")
	ref = path.Clean(ref)
	if ref == "." || ref == "/" {
		return ""
	}
	return strings.TrimPrefix(ref, "/")
}

// Resolve maps a document-side reference to a materialized blob, or nil.
func (m *MediaMap) Resolve(ref string) *Blob {
	if m == nil {
		return nil
	}
	key := normalizeRef(ref)
	if key == "" {
		return nil
	}
	if b, ok := m.byPath[key]; ok {
		return b
	}
	if trimmed := stripFirstDir(key); trimmed != key {
		if b, ok := m.byPath[trimmed]; ok {
			return b
		}
	}
	if b, ok := m.byTrim[key]; ok {
		return b
	}
	if b, ok := m.byName[path.Base(key)]; ok {
		return b
	}
	return nil
}

// Len reports the number of materialized blobs.
func (m *MediaMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.blobs)
}

// Blobs returns all blobs in archive order. The slice is shared; callers
// must not mutate it.
func (m *MediaMap) Blobs() []*Blob {
	if m == nil {
		return nil
	}
	return m.blobs
}
