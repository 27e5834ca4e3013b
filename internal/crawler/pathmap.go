package crawler

import (
	"net/url"
	"path"
	"strings"
)

// RootDocument is the local path of the snapshot page.
const RootDocument = "index.html"

var kindFolders = map[Kind]string{
	KindImage:      "images",
	KindStylesheet: "css",
	KindScript:     "js",
}

// MapPath converts a reference into a slash-separated path relative to the
// backup root. It is a pure function of the reference.
//
// Assets land in a per-kind folder under the basename of their source path;
// distinct URLs sharing a basename map to the same path. Internal pages keep
// the remote path hierarchy, with index.html appended to directory paths.
func MapPath(ref Reference) string {
	switch {
	case ref.Kind == KindPage:
		return RootDocument
	case ref.Kind.IsAsset():
		return path.Join(kindFolders[ref.Kind], assetBasename(ref.URL))
	default:
		return pagePath(ref.URL)
	}
}

func assetBasename(raw string) string {
	u, err := url.Parse(raw)
	if err == nil {
		base := path.Base(u.Path)
		if base != "/" && base != "." && base != ".." && base != "" {
			return base
		}
	}
	return hashURL(raw)[:16]
}

func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Join("pages", hashURL(raw)[:16]+".html")
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += RootDocument
	}
	// Cleaning against "/" drops any ".." that would escape the backup root.
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
