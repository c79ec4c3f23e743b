package cache

// Kind classifies the content of a download and drives file naming.
type Kind int

const (
	KindGeneric Kind = iota
	KindAudio
	KindVideo
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "file"
	}
}

// Ext returns the fixed file extension for the kind. Generic content has no
// fixed extension; the allocator sniffs one from the URL instead.
func (k Kind) Ext() string {
	switch k {
	case KindAudio:
		return ".mp3"
	case KindVideo:
		return ".mp4"
	case KindImage:
		return ".jpg"
	default:
		return ""
	}
}

// KindFromString maps an API kind label to a Kind. Unknown labels fall back
// to generic.
func KindFromString(s string) Kind {
	switch s {
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	case "image":
		return KindImage
	default:
		return KindGeneric
	}
}
