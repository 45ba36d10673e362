package filetypes

// Category classifies an indexed entry by its file extension.
type Category string

const (
	// CategoryDirectory is the reserved sentinel for directory entries.
	CategoryDirectory Category = "directory"
	// CategoryImage represents an image file.
	CategoryImage Category = "image"
	// CategoryVideo represents a video file.
	CategoryVideo Category = "video"
	// CategoryAudio represents an audio file.
	CategoryAudio Category = "audio"
	// CategoryDocument represents a document file.
	CategoryDocument Category = "document"
	// CategoryArchive represents an archive file.
	CategoryArchive Category = "archive"
	// CategoryOther represents any unrecognized file type.
	CategoryOther Category = "other"
)

// ImageExtensions maps file extensions to whether they are recognized image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".svg":  true,
	".ico":  true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are recognized video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// AudioExtensions maps file extensions to whether they are recognized audio formats.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".m4a":  true,
	".aac":  true,
	".wma":  true,
	".opus": true,
}

// DocumentExtensions maps file extensions to whether they are recognized document formats.
var DocumentExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".ppt":  true,
	".pptx": true,
	".odt":  true,
	".epub": true,
	".csv":  true,
}

// ArchiveExtensions maps file extensions to whether they are recognized archive formats.
var ArchiveExtensions = map[string]bool{
	".zip": true,
	".tar": true,
	".gz":  true,
	".bz2": true,
	".xz":  true,
	".7z":  true,
	".rar": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",

	// Audio
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
	".opus": "audio/opus",

	// Documents
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".epub": "application/epub+zip",
	".csv":  "text/csv",

	// Archives
	".zip": "application/zip",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
	".bz2": "application/x-bzip2",
	".xz":  "application/x-xz",
	".7z":  "application/x-7z-compressed",
	".rar": "application/vnd.rar",
}

// Classify returns the Category for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns CategoryOther if the extension is not recognized.
func Classify(ext string) Category {
	switch {
	case ImageExtensions[ext]:
		return CategoryImage
	case VideoExtensions[ext]:
		return CategoryVideo
	case AudioExtensions[ext]:
		return CategoryAudio
	case DocumentExtensions[ext]:
		return CategoryDocument
	case ArchiveExtensions[ext]:
		return CategoryArchive
	default:
		return CategoryOther
	}
}

// MimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func MimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Valid reports whether c is one of the known categories.
func Valid(c Category) bool {
	switch c {
	case CategoryDirectory, CategoryImage, CategoryVideo, CategoryAudio,
		CategoryDocument, CategoryArchive, CategoryOther:
		return true
	}
	return false
}
