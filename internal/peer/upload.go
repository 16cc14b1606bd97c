package peer

import (
	"os"

	"github.com/shakespeer/sphubd/internal/errs"
)

// ShareTranslator resolves a peer-requested virtual path to a local one, the
// same contract internal/share.Index.TranslateToLocal satisfies.
type ShareTranslator interface {
	TranslateToLocal(virtualPath string) (string, error)
}

// PrepareUpload validates an incoming file request per spec.md §4.6's
// upload-preparation rules: translate the path, reject self-requests and
// non-regular files, and clamp a zero length to "rest of file". myNick is
// our own nick (a peer requesting their own shared path is rejected to
// avoid a degenerate self-transfer loop).
func PrepareUpload(tr ShareTranslator, myNick, requestedNick, virtualPath string, offset, length int64) (localPath string, actualLength int64, err error) {
	if requestedNick == myNick {
		return "", 0, errs.New(errs.Protocol, errSelfRequest)
	}
	local, terr := tr.TranslateToLocal(virtualPath)
	if terr != nil {
		return "", 0, errs.Wrap(errs.Protocol, terr, "translate upload path")
	}
	info, serr := os.Stat(local)
	if serr != nil {
		return "", 0, errs.Wrap(errs.Transient, serr, "stat upload path")
	}
	if !info.Mode().IsRegular() {
		return "", 0, errs.New(errs.Protocol, errNotRegular)
	}
	if length == 0 {
		length = info.Size() - offset
	}
	if offset < 0 || offset+length > info.Size() {
		return "", 0, errs.New(errs.Protocol, errRangeOutOfBounds)
	}
	return local, length, nil
}

type uploadError string

func (e uploadError) Error() string { return string(e) }

const (
	errSelfRequest      uploadError = "peer requested own nick's share"
	errNotRegular       uploadError = "requested path is not a regular file"
	errRangeOutOfBounds uploadError = "requested range exceeds file size"
)
